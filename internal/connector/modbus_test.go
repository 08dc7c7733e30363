package connector

import (
	"encoding/binary"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/config"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/diagnostic"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/modbus"
	"github.com/GoomerJaspartap/diagnostic-controller/internal/types"
)

// fakeModbusTarget answers every register read with the given registers.
func fakeModbusTarget(t *testing.T, registers []uint16) (string, int) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				buf := make([]byte, 260)
				for {
					n, err := conn.Read(buf)
					if err != nil {
						return
					}
					request, err := modbus.DecodeFrame(buf[:n])
					if err != nil {
						return
					}
					data := make([]byte, 1+2*len(registers))
					data[0] = byte(2 * len(registers))
					for i, reg := range registers {
						binary.BigEndian.PutUint16(data[1+2*i:], reg)
					}
					response := &modbus.ModbusFrame{
						TransactionID: request.TransactionID,
						UnitID:        request.UnitID,
						FunctionCode:  request.FunctionCode,
						Data:          data,
					}
					if _, err := conn.Write(response.Encode()); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	host, portStr, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return host, port
}

func modbusCode(ip string, port int) types.DiagnosticCode {
	lower, upper := 18.0, 25.0
	return types.DiagnosticCode{
		ID:          uuid.New(),
		Code:        "TEMP-001",
		Description: "Server room temperature",
		Type:        "Temperature",
		Source:      types.SourceKindModbus,
		Modbus: &types.ModbusParams{
			IP:              ip,
			Port:            port,
			UnitID:          1,
			RegisterKind:    types.RegisterKindHolding,
			RegisterAddress: 0,
			DataType:        types.DataTypeInt16,
			ByteOrder:       types.ByteOrderBigEndian,
			Scaling:         0.1,
		},
		LowerLimit: &lower,
		UpperLimit: &upper,
		Enabled:    true,
	}
}

func TestModbusPollerEvaluatesDueCodes(t *testing.T) {
	ip, port := fakeModbusTarget(t, []uint16{210})

	gw := &fakeEvalGateway{
		settings: types.AppSettings{RefreshInterval: 5},
		codes:    []types.DiagnosticCode{modbusCode(ip, port)},
	}
	ev := NewEvaluator(gw, &fakeAlerter{}, "Diagnostics Alert", "Codes changed state:", zap.NewNop())
	poller := NewModbusPoller(gw, ev, config.PollerConfig{ModbusTimeout: time.Second}, zap.NewNop())

	now := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
	poller.cycle(now)

	require.Len(t, gw.applied, 1)
	applied := gw.applied[0]
	assert.Equal(t, diagnostic.StatePass, applied.tr.State)
	require.NotNil(t, applied.value)
	assert.InDelta(t, 21.0, *applied.value, 1e-9)
	require.NotNil(t, applied.readAt)
	assert.True(t, applied.readAt.Equal(now))
}

func TestModbusPollerRespectsPollInterval(t *testing.T) {
	ip, port := fakeModbusTarget(t, []uint16{210})

	gw := &fakeEvalGateway{
		settings: types.AppSettings{RefreshInterval: 5},
		codes:    []types.DiagnosticCode{modbusCode(ip, port)},
	}
	ev := NewEvaluator(gw, &fakeAlerter{}, "Diagnostics Alert", "Codes changed state:", zap.NewNop())
	poller := NewModbusPoller(gw, ev, config.PollerConfig{ModbusTimeout: time.Second}, zap.NewNop())

	now := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

	poller.cycle(now)
	require.Len(t, gw.applied, 1)

	poller.cycle(now.Add(time.Second))
	assert.Len(t, gw.applied, 1)

	poller.cycle(now.Add(6 * time.Second))
	assert.Len(t, gw.applied, 2)
}

func TestModbusPollerFailsWholeGroupOnDialError(t *testing.T) {
	codeA := modbusCode("127.0.0.1", 1)
	codeB := modbusCode("127.0.0.1", 1)
	codeB.Code = "TEMP-002"

	gw := &fakeEvalGateway{
		settings: types.AppSettings{RefreshInterval: 5},
		codes:    []types.DiagnosticCode{codeA, codeB},
		contacts: reachableContacts(),
	}
	ev := NewEvaluator(gw, &fakeAlerter{}, "Diagnostics Alert", "Codes changed state:", zap.NewNop())
	poller := NewModbusPoller(gw, ev, config.PollerConfig{ModbusTimeout: 100 * time.Millisecond}, zap.NewNop())

	poller.cycle(time.Now())

	require.Len(t, gw.applied, 2)
	for _, applied := range gw.applied {
		assert.Equal(t, diagnostic.StateFail, applied.tr.State)
		assert.Contains(t, applied.tr.Failure, "connection to 127.0.0.1:1 failed")
	}
}
