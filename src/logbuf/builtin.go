package logbuf

// CodeMarker is the built-in marker type every buffer may emit
// (e.g. epoch-boundary markers for the durability layer); it carries no
// payload and applies as a no-op (spec §4.5 "Marker" kind).
const CodeMarker Code = 1

// FirstUserCode is the lowest code value storage/record log types should
// start registering from, leaving room below for engine-wide built-ins.
const FirstUserCode Code = 16
