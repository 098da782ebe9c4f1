// Package keystore loads signing identities and the peer roster.
//
// An identity is an Ed25519 key pair stored in a JSON key file with 0600
// permissions. The private key is loaded once at startup and never leaves
// the process. Peer public keys are distributed out of band in a roster
// file mapping party ids to public keys; the watchtower uses the roster to
// authenticate heartbeats, so a party absent from the roster cannot be
// pre-registered.
//
// Key files:
//
//	key.json:    {"pub_key": "...", "priv_key": "..."}
//	roster.json: {"parties": [{"party_id": 0, "pub_key": "..."}, ...]}
//
// Generation helpers exist for provisioning and tests; production key
// ceremonies happen outside this package.
package keystore
