// Package watch provides experimental automatic reload for hotswap hosts.
//
// Watcher polls a build output directory and yields hotswap.Reload once per
// newly observed artifact:
// 1. the first poll records a baseline and never asks for a reload
// 2. a different newest artifact (path or modification time) asks once
// 3. a directory with no artifact is not a change
//
// This package is EXPERIMENTAL and its API may change before v1.
package watch
