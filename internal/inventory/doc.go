// Package inventory runs discovery rounds and publishes their results.
//
// Engine chains the pipeline stages for one round. Publisher runs the engine
// on a fixed interval and swaps the finished snapshot in atomically, so
// readers always see either the previous complete inventory or the new one.
package inventory
