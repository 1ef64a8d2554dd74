// Package realtime is the dashboard's link to the trading backend's websocket.
//
// A Client owns one Channel at a time, answers keepalives, reconnects with a
// capped backoff after unexpected closes and re-asserts the grid-trade
// subscription on every open. Inbound frames are classified and applied to a
// state.Store, which is the only state consumers read.
package realtime
