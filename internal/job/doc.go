// Package job models the externally executed superpixel classification job:
// its status codes, launching and rerunning it, finding the job previously run
// for a folder, locating its descriptor in the image catalog, and polling it
// until it succeeds.
//
// A [Poller] runs one goroutine per [Handle]. The goroutine stops on the tick
// that observes success, on handle cancellation, or when the watch context is
// done. The success callback runs at most once per handle.
package job
