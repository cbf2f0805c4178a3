// Package models holds the domain entities shared by the client and the
// server: the EncryptedFile produced on the sender's machine and the
// SharedFile lifecycle the server enforces over it.
package models

// Capability is fixed at construction time and decides whether client-only
// operations (reading plaintext files, encrypting them) are permitted.
type Capability struct {
	client bool
}

// ClientCapability is held by code running on the sender's or recipient's
// machine.
func ClientCapability() Capability { return Capability{client: true} }

// ServerCapability is held by server code. It never permits plaintext access.
func ServerCapability() Capability { return Capability{} }

func (c Capability) IsClient() bool { return c.client }

func (c Capability) String() string {
	if c.client {
		return "client"
	}
	return "server"
}
