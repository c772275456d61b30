package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brahimab8/sensorbusd/pkg/protocol"
)

func TestDispatchUnregisteredOpcodeNacksInvalidCmd(t *testing.T) {
	d := New()
	typ, resp := d.Dispatch(0x42, nil)
	require.Equal(t, protocol.TypeNack, typ)
	require.Equal(t, []byte{byte(InvalidCmd)}, resp)
}

func TestDispatchOversizePayloadNacksInvalidLen(t *testing.T) {
	d := New()
	typ, resp := d.Dispatch(0x01, make([]byte, protocol.MaxPayload+1))
	require.Equal(t, protocol.TypeNack, typ)
	require.Equal(t, []byte{byte(InvalidLen)}, resp)
}

func TestDispatchParserFailureNacks(t *testing.T) {
	d := New()
	d.Register(0x01,
		func(payload []byte, args *Args) (ErrorCode, bool) {
			if len(payload) < 1 {
				return InvalidLen, false
			}
			args.SensorID = payload[0]
			return OK, true
		},
		func(args *Args, resp []byte) (int, ErrorCode, bool) { return 0, OK, true },
	)
	typ, resp := d.Dispatch(0x01, nil)
	require.Equal(t, protocol.TypeNack, typ)
	require.Equal(t, []byte{byte(InvalidLen)}, resp)
}

func TestDispatchHandlerSuccessAcks(t *testing.T) {
	d := New()
	d.Register(0x05,
		func([]byte, *Args) (ErrorCode, bool) { return OK, true },
		func(*Args, []byte) (int, ErrorCode, bool) { return 0, OK, true },
	)
	typ, resp := d.Dispatch(0x05, nil)
	require.Equal(t, protocol.TypeAck, typ)
	require.Empty(t, resp)
}

func TestDispatchHandlerFailureNacksWithCode(t *testing.T) {
	d := New()
	d.Register(0x07,
		func([]byte, *Args) (ErrorCode, bool) { return OK, true },
		func(*Args, []byte) (int, ErrorCode, bool) { return 0, SensorBusy, false },
	)
	typ, resp := d.Dispatch(0x07, nil)
	require.Equal(t, protocol.TypeNack, typ)
	require.Equal(t, []byte{byte(SensorBusy)}, resp)
}

func TestRegisterOverwritesPriorEntry(t *testing.T) {
	d := New()
	d.Register(0x01, func([]byte, *Args) (ErrorCode, bool) { return OK, true },
		func(*Args, []byte) (int, ErrorCode, bool) { return 0, OK, true })
	d.Register(0x01, func([]byte, *Args) (ErrorCode, bool) { return OK, true },
		func(*Args, []byte) (int, ErrorCode, bool) { return 0, InvalidValue, false })

	typ, resp := d.Dispatch(0x01, nil)
	require.Equal(t, protocol.TypeNack, typ)
	require.Equal(t, []byte{byte(InvalidValue)}, resp)
}
