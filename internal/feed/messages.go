package feed

import (
	"encoding/json"
	"fmt"

	"token-find/internal/domain"
)

// Inbound event discriminators.
const (
	EventCopyTrades      = "subscribe_copytrades"
	EventNewTrade        = "new_trade"
	EventMarketCapUpdate = "mc_update"
	EventError           = "error"
)

// Outbound subscription events, sent once per successful connection.
const (
	subscribeCopyTradesEvent = "subscribe_copytrades"
	subscribeMCUpdatesEvent  = "subscribe_mc_updates"
)

// subscribeRequest is the outbound handshake frame.
type subscribeRequest struct {
	Event string `json:"event"`
}

// Envelope is a decoded feed frame. Only the event discriminator is parsed
// eagerly; variant payloads are decoded on demand from Raw.
type Envelope struct {
	Event string
	Raw   json.RawMessage
}

// UnmarshalJSON keeps the full frame and extracts the event discriminator.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var head struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	e.Event = head.Event
	e.Raw = append(e.Raw[:0], data...)
	return nil
}

// MarshalJSON returns the original frame.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if len(e.Raw) == 0 {
		return json.Marshal(subscribeRequest{Event: e.Event})
	}
	return e.Raw, nil
}

// Wire shapes of the variant payloads.
type copyTradesFrame struct {
	Data struct {
		Trades []domain.TradeRecord `json:"trades"`
	} `json:"data"`
}

type newTradeFrame struct {
	TradeData struct {
		TradeDataToBroadcast *domain.TradeRecord `json:"tradeDataToBroadcast"`
	} `json:"tradeData"`
}

type mcUpdateFrame struct {
	TradeData struct {
		MCUpdateData *domain.MarketCapUpdate `json:"mcUpdateData"`
	} `json:"tradeData"`
}

type errorFrame struct {
	Message string `json:"message"`
}

// CopyTrades decodes a subscribe_copytrades snapshot.
func (e Envelope) CopyTrades() ([]domain.TradeRecord, error) {
	if err := e.expect(EventCopyTrades); err != nil {
		return nil, err
	}
	var f copyTradesFrame
	if err := json.Unmarshal(e.Raw, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Event, err)
	}
	return f.Data.Trades, nil
}

// NewTrade decodes the broadcast trade of a new_trade frame.
func (e Envelope) NewTrade() (*domain.TradeRecord, error) {
	if err := e.expect(EventNewTrade); err != nil {
		return nil, err
	}
	var f newTradeFrame
	if err := json.Unmarshal(e.Raw, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Event, err)
	}
	if f.TradeData.TradeDataToBroadcast == nil {
		return nil, fmt.Errorf("decode %s: missing tradeDataToBroadcast", e.Event)
	}
	return f.TradeData.TradeDataToBroadcast, nil
}

// MarketCapUpdate decodes the payload of an mc_update frame.
func (e Envelope) MarketCapUpdate() (*domain.MarketCapUpdate, error) {
	if err := e.expect(EventMarketCapUpdate); err != nil {
		return nil, err
	}
	var f mcUpdateFrame
	if err := json.Unmarshal(e.Raw, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Event, err)
	}
	if f.TradeData.MCUpdateData == nil {
		return nil, fmt.Errorf("decode %s: missing mcUpdateData", e.Event)
	}
	return f.TradeData.MCUpdateData, nil
}

// ErrorMessage returns the message of an error frame.
func (e Envelope) ErrorMessage() (string, error) {
	if err := e.expect(EventError); err != nil {
		return "", err
	}
	var f errorFrame
	if err := json.Unmarshal(e.Raw, &f); err != nil {
		return "", fmt.Errorf("decode %s: %w", e.Event, err)
	}
	return f.Message, nil
}

func (e Envelope) expect(event string) error {
	if e.Event != event {
		return fmt.Errorf("envelope event is %q, not %q", e.Event, event)
	}
	return nil
}
