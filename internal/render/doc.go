// Package render drives one render job through speech synthesis, video
// synthesis, output discovery and promotion.
//
// A single job renders one FAQ answer clip. A paired job renders a chatbot's
// greeting clip and then its silent idle clip; each slot carries its own
// entity marker so a failed idle clip never takes the greeting down with it.
package render
