// This file contains information about the tool, like the version.

package info

// Version of the tool.
var Version = "0.1.0"
