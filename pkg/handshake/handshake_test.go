package handshake

import (
	"net"
	"sync"
	"testing"

	"github.com/davidwed/TsunamiUDP/pkg/ttperr"
	"github.com/davidwed/TsunamiUDP/pkg/wire"
	"github.com/stretchr/testify/assert"
)

func TestNegotiateSucceedsOnMatchingRevision(t *testing.T) {
	server, client := net.Pipe()
	var wg sync.WaitGroup
	wg.Add(2)
	var serverErr, clientErr error

	go func() { defer wg.Done(); serverErr = NegotiateServer(server) }()
	go func() { defer wg.Done(); clientErr = NegotiateClient(client) }()
	wg.Wait()

	assert.NoError(t, serverErr)
	assert.NoError(t, clientErr)
}

func TestFullNegotiationRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	secret := []byte("shared-secret")

	var wg sync.WaitGroup
	wg.Add(2)
	var serverErr, clientErr error
	var gotFilename string
	var gotClientParams wire.ClientParameters
	var gotPort uint16

	go func() {
		defer wg.Done()
		if err := NegotiateServer(server); err != nil {
			serverErr = err
			return
		}
		if err := AuthenticateServer(server, secret); err != nil {
			serverErr = err
			return
		}
		name, err := ReadFilename(server)
		if err != nil {
			serverErr = err
			return
		}
		gotFilename = name
		if err := RespondFileStatus(server, true); err != nil {
			serverErr = err
			return
		}
		params, err := ReadClientParameters(server)
		if err != nil {
			serverErr = err
			return
		}
		gotClientParams = params
		if err := SendServerParameters(server, wire.ServerParameters{
			FileSize:   1 << 20,
			BlockSize:  params.BlockSize,
			BlockCount: 1024,
			Epoch:      1700000000,
		}); err != nil {
			serverErr = err
			return
		}
		port, err := ReadUDPPort(server)
		if err != nil {
			serverErr = err
			return
		}
		gotPort = port
	}()

	go func() {
		defer wg.Done()
		if err := NegotiateClient(client); err != nil {
			clientErr = err
			return
		}
		if err := AuthenticateClient(client, secret); err != nil {
			clientErr = err
			return
		}
		accepted, err := RequestFile(client, "testdata.bin")
		if err != nil {
			clientErr = err
			return
		}
		if !accepted {
			clientErr = ttperr.ErrFileOpenFailure
			return
		}
		if err := SendClientParameters(client, wire.ClientParameters{
			BlockSize:  1024,
			TargetRate: 10_000_000,
			ErrorRate:  10000,
			SlowerNum:  11,
			SlowerDen:  10,
			FasterNum:  9,
			FasterDen:  10,
		}); err != nil {
			clientErr = err
			return
		}
		if _, err := ReadServerParameters(client); err != nil {
			clientErr = err
			return
		}
		if err := SendUDPPort(client, 46000); err != nil {
			clientErr = err
			return
		}
	}()

	wg.Wait()
	assert.NoError(t, serverErr)
	assert.NoError(t, clientErr)
	assert.Equal(t, "testdata.bin", gotFilename)
	assert.EqualValues(t, 1024, gotClientParams.BlockSize)
	assert.EqualValues(t, 46000, gotPort)
}

func TestNegotiateFailsOnVersionMismatch(t *testing.T) {
	server, client := net.Pipe()
	var wg sync.WaitGroup
	wg.Add(2)
	var serverErr, clientErr error

	go func() {
		defer wg.Done()
		buf := make([]byte, 4)
		buf[3] = 1 // bogus revision, distinct from wire.ProtocolRevision's low byte
		server.Write(buf)
		echoed := make([]byte, 4)
		server.Read(echoed)
	}()
	go func() { defer wg.Done(); clientErr = NegotiateClient(client) }()
	wg.Wait()

	_ = serverErr
	assert.ErrorIs(t, clientErr, ttperr.ErrVersionMismatch)
}
