package chathub

import "strangerchat/backend/internal/models"

// Client is one live connection of a participant. It abstracts the
// underlying transport so the hub can manage every client the same way.
type Client interface {
	// GetParticipant returns the identity the connection authenticated as.
	GetParticipant() models.Participant

	// GetSendChannel returns the channel the hub writes this client's
	// events to. It is a send-only channel.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the connection down. The hub calls it exactly once.
	Close()
}
