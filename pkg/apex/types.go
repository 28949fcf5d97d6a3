package apex

import (
	"github.com/shopspring/decimal"
)

// Gateway function and event names.
const (
	MethodPing                         = "Ping"
	MethodGetProducts                  = "GetProducts"
	MethodGetInstruments               = "GetInstruments"
	MethodAuthenticateUser             = "AuthenticateUser"
	MethodAuthenticate2FA              = "Authenticate2FA"
	MethodGetAccountPositions          = "GetAccountPositions"
	MethodGetUserConfig                = "GetUserConfig"
	MethodGetWithdrawFormTemplateTypes = "GetWithdrawFormTemplateTypes"
	MethodCreateWithdrawTicket         = "CreateWithdrawTicket"
	MethodGetWithdrawTicket            = "GetWithdrawTicket"
	MethodGetWithdrawTickets           = "GetWithdrawTickets"
	MethodGetDepositInfo               = "GetDepositInfo"
	MethodSubscribeLevel1              = "SubscribeLevel1"
	MethodUnsubscribeLevel1            = "UnsubscribeLevel1"
	MethodGetLevel1                    = "GetLevel1"

	EventLevel1Update = "Level1UpdateEvent"
)

// Product is a single asset known to the venue.
type Product struct {
	OMSId           int    `json:"OMSId"`
	ProductId       int    `json:"ProductId"`
	Product         string `json:"Product"`
	ProductFullName string `json:"ProductFullName"`
	DecimalPlaces   int    `json:"DecimalPlaces"`
}

// Instrument is a tradeable pair, Symbol = crypto + fiat (e.g. "BTCUSD").
type Instrument struct {
	OMSId          int    `json:"OMSId"`
	InstrumentId   int    `json:"InstrumentId"`
	Symbol         string `json:"Symbol"`
	Product1       int    `json:"Product1"`
	Product1Symbol string `json:"Product1Symbol"`
	Product2       int    `json:"Product2"`
	Product2Symbol string `json:"Product2Symbol"`
}

type AuthenticateUserRequest struct {
	APIKey    string `json:"APIKey"`
	Signature string `json:"Signature"`
	UserId    string `json:"UserId"`
	Nonce     string `json:"Nonce"`
}

// UserInfo is the authenticated principal.
type UserInfo struct {
	UserId    int    `json:"UserId"`
	UserName  string `json:"UserName"`
	Email     string `json:"Email"`
	AccountId int    `json:"AccountId"`
	OMSId     int    `json:"OMSId"`
	Use2FA    bool   `json:"Use2FA"`
}

type AuthenticateUserResponse struct {
	Authenticated bool     `json:"Authenticated"`
	Requires2FA   bool     `json:"Requires2FA"`
	AuthType      string   `json:"AuthType"`
	SessionToken  string   `json:"SessionToken"`
	User          UserInfo `json:"User"`
	ErrorMsg      string   `json:"errormsg"`
}

type Authenticate2FARequest struct {
	Code string `json:"Code"`
}

type Authenticate2FAResponse struct {
	Authenticated bool   `json:"Authenticated"`
	SessionToken  string `json:"SessionToken"`
	UserId        int    `json:"UserId"`
	ErrorMsg      string `json:"errormsg"`
}

// Position is an account balance for one product. Hold is the reserved part
// of Amount.
type Position struct {
	OMSId            int             `json:"OMSId"`
	AccountId        int             `json:"AccountId"`
	ProductSymbol    string          `json:"ProductSymbol"`
	ProductId        int             `json:"ProductId"`
	Amount           decimal.Decimal `json:"Amount"`
	Hold             decimal.Decimal `json:"Hold"`
	PendingDeposits  decimal.Decimal `json:"PendingDeposits"`
	PendingWithdraws decimal.Decimal `json:"PendingWithdraws"`
}

type UserConfigEntry struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

type TemplateType struct {
	TemplateName        string `json:"TemplateName"`
	AccountProviderId   int    `json:"AccountProviderId"`
	AccountProviderName string `json:"AccountProviderName"`
}

type templateTypesResponse struct {
	TemplateTypes []TemplateType `json:"TemplateTypes"`
}

// TemplateForm is the withdrawal form; on the wire it is a JSON string.
type TemplateForm struct {
	ExternalAddress string `json:"ExternalAddress"`
	TemplateType    string `json:"TemplateType"`
}

type CreateWithdrawTicketRequest struct {
	OMSId        int                    `json:"OMSId"`
	AccountId    int                    `json:"AccountId"`
	ProductId    int                    `json:"ProductId"`
	Amount       decimal.Decimal        `json:"Amount"`
	TemplateForm Embedded[TemplateForm] `json:"TemplateForm"`
	TemplateType string                 `json:"TemplateType"`
}

// CreateWithdrawTicketResponse carries the request code in Detail when
// Result is true, and the failure reason otherwise.
type CreateWithdrawTicketResponse struct {
	Result    bool            `json:"result"`
	ErrorMsg  string          `json:"errormsg"`
	ErrorCode int             `json:"errorcode"`
	Detail    string          `json:"detail"`
	FeeAmt    decimal.Decimal `json:"FeeAmt"`
}

// TransactionDetails is filled in by the venue once the withdrawal has been
// broadcast.
type TransactionDetails struct {
	TxId            string `json:"TxId"`
	ExternalAddress string `json:"ExternalAddress"`
	Amount          string `json:"Amount"`
	Confirmed       bool   `json:"Confirmed"`
	LastUpdated     string `json:"LastUpdated"`
}

// WithdrawTicket is the venue record of one withdrawal request.
type WithdrawTicket struct {
	OMSId                      int                          `json:"OMSId"`
	AccountId                  int                          `json:"AccountId"`
	ProductId                  int                          `json:"ProductId"`
	Amount                     decimal.Decimal              `json:"Amount"`
	FeeAmt                     decimal.Decimal              `json:"FeeAmt"`
	RequestCode                string                       `json:"RequestCode"`
	TemplateForm               Embedded[TemplateForm]       `json:"TemplateForm"`
	TemplateFormType           string                       `json:"TemplateFormType"`
	Status                     string                       `json:"Status"`
	CreatedTimestampTick       int64                        `json:"CreatedTimestampTick"`
	LastUpdateTimestampTick    int64                        `json:"LastUpdateTimestampTick"`
	WithdrawTransactionDetails Embedded[TransactionDetails] `json:"WithdrawTransactionDetails"`
}

// TxID is the on-chain id, empty until the venue assigns one.
func (t WithdrawTicket) TxID() string {
	return t.WithdrawTransactionDetails.Value.TxId
}

// ExternalAddress is the withdrawal destination.
func (t WithdrawTicket) ExternalAddress() string {
	return t.TemplateForm.Value.ExternalAddress
}

type DepositInfoRequest struct {
	OMSId          int  `json:"OMSId"`
	AccountId      int  `json:"AccountId"`
	ProductId      int  `json:"ProductId"`
	GenerateNewKey bool `json:"GenerateNewKey"`
}

// DepositInfoResponse lists deposit addresses; DepositInfo is a JSON string
// holding an array on the wire.
type DepositInfoResponse struct {
	Result         bool               `json:"result"`
	ErrorMsg       string             `json:"errormsg"`
	AssetManagerId int                `json:"AssetManagerId"`
	AccountId      int                `json:"AccountId"`
	ProductId      int                `json:"ProductId"`
	DepositInfo    Embedded[[]string] `json:"DepositInfo"`
}

// Addresses returns the deposit addresses.
func (r DepositInfoResponse) Addresses() []string {
	return r.DepositInfo.Value
}

// Level1 is a top-of-book snapshot.
type Level1 struct {
	OMSId        int             `json:"OMSId"`
	InstrumentId int             `json:"InstrumentId"`
	BestBid      decimal.Decimal `json:"BestBid"`
	BestOffer    decimal.Decimal `json:"BestOffer"`
	LastTradedPx decimal.Decimal `json:"LastTradedPx"`
	TimeStamp    int64           `json:"TimeStamp"`
}

type instrumentRequest struct {
	OMSId        int `json:"OMSId"`
	InstrumentId int `json:"InstrumentId"`
}

type accountRequest struct {
	OMSId     int `json:"OMSId"`
	AccountId int `json:"AccountId"`
}
