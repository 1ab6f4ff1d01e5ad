package input

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdges(t *testing.T) {
	var e Edges

	assert.Equal(t, State{Down: ButtonTrigger, Held: ButtonTrigger}, e.Next(ButtonTrigger))
	assert.Equal(t, State{Held: ButtonTrigger}, e.Next(ButtonTrigger))
	assert.Equal(t, State{Down: ButtonExit, Held: ButtonTrigger | ButtonExit}, e.Next(ButtonTrigger|ButtonExit))
	assert.Equal(t, State{}, e.Next(0))
}

func TestButtonsHas(t *testing.T) {
	b := ButtonTrigger | ButtonExit
	assert.True(t, b.Has(ButtonTrigger))
	assert.True(t, b.Has(ButtonExit))
	assert.False(t, ButtonTrigger.Has(ButtonExit))
	assert.False(t, b.Has(0))
}

type heldProvider struct {
	state State
	err   error
}

func (p *heldProvider) Scan() (State, error) { return p.state, p.err }

func TestRemotePressLastsOneScan(t *testing.T) {
	r := NewRemote(nil)

	r.Press(ButtonTrigger)
	s, err := r.Scan()
	require.NoError(t, err)
	assert.Equal(t, State{Down: ButtonTrigger, Held: ButtonTrigger}, s)

	s, err = r.Scan()
	require.NoError(t, err)
	assert.Equal(t, State{}, s)
}

func TestRemoteMergesWithBase(t *testing.T) {
	base := &heldProvider{state: State{Held: ButtonTrigger}}
	r := NewRemote(base)

	r.Press(ButtonTrigger | ButtonExit)
	s, err := r.Scan()
	require.NoError(t, err)
	// The trigger was already held so only exit is new.
	assert.Equal(t, State{Down: ButtonExit, Held: ButtonTrigger | ButtonExit}, s)
}

func TestRemotePassesBaseError(t *testing.T) {
	base := &heldProvider{err: errors.New("bus error")}
	r := NewRemote(base)

	_, err := r.Scan()
	assert.EqualError(t, err, "bus error")
}
