// Package entity reads render inputs from FAQ and chatbot records and writes
// their per-artifact render markers.
//
// The records themselves belong to the backoffice application. This package
// only touches the text, voice, avatar, marker, and artifact path columns.
package entity
