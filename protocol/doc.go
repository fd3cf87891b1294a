// Package protocol implements both directions of the swaybar/i3bar JSON
// protocol.
//
// Output is a header object, an opening bracket, and then an endless array of
// frames, one per line:
//
//	{"version":1,"click_events":true}
//	[
//	[{"full_text":"12:00:00","name":"clock"}]
//	,[{"full_text":"12:00:01","name":"clock"}]
//
// Input mirrors it: an opening bracket followed by one click event object
// per line, every one after the first prefixed with a comma.
//
// Writer guarantees one Write per frame. Reader tolerates garbage lines and
// reports end of input as ErrInputClosed.
package protocol
