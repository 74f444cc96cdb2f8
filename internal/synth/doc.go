// Package synth builds and runs the speech (piper) and video (SadTalker)
// synthesis commands.
package synth
