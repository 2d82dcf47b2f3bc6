package smartcard

import (
	"errors"

	"github.com/ebfe/scard"
)

// Context is the part of a PC/SC context the driver uses.
type Context interface {
	ListReaders() ([]string, error)
	Connect(reader string) (Card, error)
	Release() error
}

// Card is a connected card.
type Card interface {
	Transmit(cmd []byte) ([]byte, error)
	Disconnect() error
}

type pcscContext struct {
	ctx *scard.Context
}

// EstablishContext opens a PC/SC context on the local resource manager.
func EstablishContext() (Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, err
	}
	return &pcscContext{ctx: ctx}, nil
}

func (c *pcscContext) ListReaders() ([]string, error) {
	return c.ctx.ListReaders()
}

func (c *pcscContext) Connect(reader string) (Card, error) {
	card, err := c.ctx.Connect(reader, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		return nil, err
	}
	return &pcscCard{card: card}, nil
}

func (c *pcscContext) Release() error {
	return c.ctx.Release()
}

type pcscCard struct {
	card *scard.Card
}

func (c *pcscCard) Transmit(cmd []byte) ([]byte, error) {
	return c.card.Transmit(cmd)
}

func (c *pcscCard) Disconnect() error {
	return c.card.Disconnect(scard.LeaveCard)
}

func isNoReaders(err error) bool {
	return errors.Is(err, scard.ErrNoReadersAvailable)
}

func isNoCard(err error) bool {
	return errors.Is(err, scard.ErrNoSmartcard) ||
		errors.Is(err, scard.ErrRemovedCard) ||
		errors.Is(err, scard.ErrUnpoweredCard)
}
