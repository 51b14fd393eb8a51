// Package mapview drives one floor plan viewing session.
//
// A Controller walks through the states
//
//	Idle -> Loading -> Active -> (level change) Loading -> Active ... -> Disposed
//
// and turns configuration plus telemetry into what the external map surface
// should show: a level with coloured markers, a legend, a viewport and
// marker popups. It never draws anything itself; output goes to a Renderer.
//
// # Level switches
//
// Selecting a level first stops the previous level's feed handle and bumps
// the generation counter, both under the controller mutex, before any load
// for the new level starts. Loads run without the mutex. Their results are
// applied only if the generation they captured is still current, so a
// popup fetch or batch load that completes after a switch is dropped.
//
// Live updates reach the session through a sink that writes to the live
// state store and renders directly. The sink never takes the controller
// mutex, which lets the controller stop a feed while holding it.
package mapview
