package modbus

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

type Client struct {
	address       string
	conn          net.Conn
	mu            sync.Mutex
	transactionID uint16
	timeout       time.Duration
	connected     bool
}

func NewClient(address string, timeout time.Duration) *Client {
	return &Client{
		address:       address,
		timeout:       timeout,
		transactionID: 0,
	}
}

// Connect establishes the TCP connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	conn, err := net.DialTimeout("tcp", c.address, c.timeout)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true

	return nil
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	err := c.conn.Close()
	c.connected = false
	c.conn = nil

	return err
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendFrame sends one frame and waits for the response.
func (c *Client) SendFrame(ctx context.Context, request *ModbusFrame) (*ModbusFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("not connected")
	}

	// unique transaction ID
	c.transactionID++
	request.TransactionID = c.transactionID

	requestData := request.Encode()

	// the client timeout bounds the attempt; an earlier context deadline wins
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)

	_, err := c.conn.Write(requestData)
	if err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	c.conn.SetReadDeadline(deadline)

	responseBuffer := make([]byte, 260) // max Modbus TCP frame
	n, err := c.conn.Read(responseBuffer)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	response, err := DecodeFrame(responseBuffer[:n])
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	if response.TransactionID != request.TransactionID {
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d",
			request.TransactionID, response.TransactionID)
	}

	return response, nil
}

// ReadRegisters reads holding or input registers depending on the function
// code.
func (c *Client) ReadRegisters(ctx context.Context, functionCode uint8, unitID uint8, startAddr uint16, quantity uint16) ([]uint16, error) {
	if functionCode != FuncCodeReadHoldingRegisters && functionCode != FuncCodeReadInputRegisters {
		return nil, fmt.Errorf("unsupported read function code 0x%02X", functionCode)
	}

	request := ReadRegistersRequest(0, unitID, functionCode, startAddr, quantity)

	response, err := c.SendFrame(ctx, request)
	if err != nil {
		return nil, err
	}

	return response.ParseRegisterResponse()
}

// ReadHoldingRegisters reads holding registers (function code 0x03).
func (c *Client) ReadHoldingRegisters(ctx context.Context, unitID uint8, startAddr uint16, quantity uint16) ([]uint16, error) {
	return c.ReadRegisters(ctx, FuncCodeReadHoldingRegisters, unitID, startAddr, quantity)
}

// ReadInputRegisters reads input registers (function code 0x04).
func (c *Client) ReadInputRegisters(ctx context.Context, unitID uint8, startAddr uint16, quantity uint16) ([]uint16, error) {
	return c.ReadRegisters(ctx, FuncCodeReadInputRegisters, unitID, startAddr, quantity)
}
