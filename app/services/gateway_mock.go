package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const pairingAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// MockGatewayClient keeps sessions in memory for local development
type MockGatewayClient struct {
	mu       sync.Mutex
	sessions map[string]string
}

// NewMockGatewayClient creates an in-memory gateway
func NewMockGatewayClient() *MockGatewayClient {
	return &MockGatewayClient{sessions: make(map[string]string)}
}

func (m *MockGatewayClient) StartSession(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[name]; ok {
		return fmt.Errorf("session %s already exists", name)
	}
	m.sessions[name] = "STARTING"
	log.Printf("[MOCK GATEWAY] started session %s", name)
	return nil
}

func (m *MockGatewayClient) StopSession(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[name]; ok {
		m.sessions[name] = "STOPPED"
	}
	log.Printf("[MOCK GATEWAY] stopped session %s", name)
	return nil
}

func (m *MockGatewayClient) GetSessionStatus(ctx context.Context, name string) (*GatewaySessionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.sessions[name]
	if !ok {
		return &GatewaySessionStatus{State: "STOPPED"}, nil
	}
	return &GatewaySessionStatus{State: state}, nil
}

func (m *MockGatewayClient) GetQRCode(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[name] = "SCAN_QR_CODE"
	return fmt.Sprintf("mock-qr:%s", name), nil
}

func (m *MockGatewayClient) GetPairingCode(ctx context.Context, name, phoneNumber string) (string, error) {
	code, err := gonanoid.Generate(pairingAlphabet, 8)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.sessions[name] = "SCAN_QR_CODE"
	m.mu.Unlock()
	log.Printf("[MOCK GATEWAY] pairing code for %s (%s): %s", name, phoneNumber, code)
	return code[:4] + "-" + code[4:], nil
}
