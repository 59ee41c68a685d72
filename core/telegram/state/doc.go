// Package state provides a domain-agnostic, in-memory session store for Telegram bots.
// Sessions are typed by the caller and addressed by chat or user id; updates for one
// key are serialized while different keys proceed in parallel.
package state
