// Package coretools implements the handlers behind the registered tools:
// file creation, reading, deletion and listing across candidate roots, and
// screen capture via an OS command.
package coretools
