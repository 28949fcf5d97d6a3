package apex

import (
	"context"
	"sync"
)

// MockClient is an in-memory stand-in for Client used in tests.
type MockClient struct {
	mu sync.RWMutex

	// Response data
	Products       []Product
	Instruments    []Instrument
	Positions      []Position
	UserConfig     []UserConfigEntry
	TemplateTypes  []TemplateType
	WithdrawResult CreateWithdrawTicketResponse
	Tickets        []WithdrawTicket
	// TicketReplies are returned by successive GetWithdrawTicket calls; the
	// last one repeats once the list is exhausted.
	TicketReplies []WithdrawTicket
	DepositInfo   DepositInfoResponse
	Level1        Level1

	// Recorded requests
	WithdrawRequests []CreateWithdrawTicketRequest
	TicketRequests   []string
	DepositRequests  []DepositInfoRequest

	// Call tracking
	Calls map[string]int

	// Error injection
	ErrorOnNext map[string]error

	closed  bool
	dropped bool
}

// NewMockClient creates a mock with an empty call log.
func NewMockClient() *MockClient {
	return &MockClient{
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
	}
}

func (m *MockClient) trackCall(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	if m.dropped {
		return ErrClosed
	}
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

// CallCount returns how many times name was called.
func (m *MockClient) CallCount(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Calls[name]
}

// TotalCalls returns the number of calls across all functions.
func (m *MockClient) TotalCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.Calls {
		n += c
	}
	return n
}

// FailNext makes the next call to name return err.
func (m *MockClient) FailNext(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorOnNext[name] = err
}

func (m *MockClient) GetProducts(ctx context.Context, omsID int) ([]Product, error) {
	if err := m.trackCall(MethodGetProducts); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Product(nil), m.Products...), nil
}

func (m *MockClient) GetInstruments(ctx context.Context, omsID int) ([]Instrument, error) {
	if err := m.trackCall(MethodGetInstruments); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Instrument(nil), m.Instruments...), nil
}

func (m *MockClient) GetAccountPositions(ctx context.Context, omsID, accountID int) ([]Position, error) {
	if err := m.trackCall(MethodGetAccountPositions); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Position(nil), m.Positions...), nil
}

func (m *MockClient) GetUserConfig(ctx context.Context, userID int) ([]UserConfigEntry, error) {
	if err := m.trackCall(MethodGetUserConfig); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]UserConfigEntry(nil), m.UserConfig...), nil
}

func (m *MockClient) GetWithdrawFormTemplateTypes(ctx context.Context, omsID, accountID, productID int) ([]TemplateType, error) {
	if err := m.trackCall(MethodGetWithdrawFormTemplateTypes); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TemplateType(nil), m.TemplateTypes...), nil
}

func (m *MockClient) CreateWithdrawTicket(ctx context.Context, req CreateWithdrawTicketRequest) (CreateWithdrawTicketResponse, error) {
	if err := m.trackCall(MethodCreateWithdrawTicket); err != nil {
		return CreateWithdrawTicketResponse{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WithdrawRequests = append(m.WithdrawRequests, req)
	return m.WithdrawResult, nil
}

func (m *MockClient) GetWithdrawTicket(ctx context.Context, omsID, accountID int, requestCode string) (WithdrawTicket, error) {
	if err := m.trackCall(MethodGetWithdrawTicket); err != nil {
		return WithdrawTicket{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TicketRequests = append(m.TicketRequests, requestCode)
	if len(m.TicketReplies) == 0 {
		return WithdrawTicket{RequestCode: requestCode}, nil
	}
	reply := m.TicketReplies[0]
	if len(m.TicketReplies) > 1 {
		m.TicketReplies = m.TicketReplies[1:]
	}
	return reply, nil
}

func (m *MockClient) GetWithdrawTickets(ctx context.Context, omsID, accountID int) ([]WithdrawTicket, error) {
	if err := m.trackCall(MethodGetWithdrawTickets); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]WithdrawTicket(nil), m.Tickets...), nil
}

func (m *MockClient) GetDepositInfo(ctx context.Context, req DepositInfoRequest) (DepositInfoResponse, error) {
	if err := m.trackCall(MethodGetDepositInfo); err != nil {
		return DepositInfoResponse{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DepositRequests = append(m.DepositRequests, req)
	return m.DepositInfo, nil
}

func (m *MockClient) Level1Snapshot(ctx context.Context, omsID, instrumentID int) (Level1, error) {
	if err := m.trackCall(MethodSubscribeLevel1); err != nil {
		return Level1{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	l := m.Level1
	l.InstrumentId = instrumentID
	return l, nil
}

func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Drop simulates the gateway closing the connection: Alive turns false and
// every later call fails with ErrClosed.
func (m *MockClient) Drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = true
}

// Alive reports whether the mock is neither closed nor dropped.
func (m *MockClient) Alive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed && !m.dropped
}

// Closed reports whether Close was called.
func (m *MockClient) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
