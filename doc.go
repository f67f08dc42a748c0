// Reversed Front map relay
//
// The relay keeps a single authenticated session to the game's Phoenix
// channel API and mirrors the live world state to any number of map
// clients:
//
//   - On startup it logs in with a regular player account, joins the
//     player, all_players and locale channels, and pulls the full city,
//     union and nation collections.
//   - Incoming update_data notifications are merged into the in-memory
//     collections one at a time, in arrival order.
//   - When a merge changes which union controls a city, the transition is
//     appended to the timelapse event log (Postgres, optional) together
//     with a once-per-day baseline snapshot, deduplicated against upstream
//     re-sends.
//   - Every merged delta is re-broadcast to connected map clients over a
//     plain WebSocket; new clients get a full snapshot first.
//
// Downstream messages are {type, payload} JSON envelopes:
//
//	initial_cities        full city collection
//	initial_nations       full nation collection
//	initial_unions        full union collection
//	initial_paths         static path network
//	initial_city_details  static per-city NPC and reward data
//	delta_update          the partial update as received upstream
//
// Delivery is best-effort and lossy by design: a slow subscriber is
// dropped and resynchronizes from a fresh snapshot when it reconnects.
//
// The REST surface (union/nation lookup, timelapse playback and export) is
// read-only and answers 503 or empty collections when no database is
// configured, so the map UI keeps working without one.
package main
