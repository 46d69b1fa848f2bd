package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ava-labs/evm-address-scanner/pkg/extractor"
)

// AddressMessage is the payload published for every newly checkpointed address.
type AddressMessage struct {
	Address string `json:"address"`
	Cursor  uint64 `json:"cursor"`
	ChainID uint64 `json:"chainId"`
}

// AddressPublisher publishes flushed address batches, one message per
// address keyed by the address so a consumer sees each address on a single
// partition.
type AddressPublisher struct {
	pub     QueuePublisher
	topic   string
	chainID uint64
	log     *zap.SugaredLogger
}

func NewAddressPublisher(pub QueuePublisher, topic string, chainID uint64, log *zap.SugaredLogger) (*AddressPublisher, error) {
	if pub == nil {
		return nil, errors.New("invalid publisher: must not be nil")
	}
	if topic == "" {
		return nil, errors.New("invalid topic: must not be empty")
	}
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	return &AddressPublisher{pub: pub, topic: topic, chainID: chainID, log: log}, nil
}

// PublishBatch stops at the first failed message. Messages already delivered
// stay delivered; consumers must tolerate duplicates when a batch is
// re-announced.
func (p *AddressPublisher) PublishBatch(ctx context.Context, cursor uint64, addrs []extractor.Address) error {
	headers := map[string]string{
		"chain_id": strconv.FormatUint(p.chainID, 10),
		"cursor":   strconv.FormatUint(cursor, 10),
	}
	for i, a := range addrs {
		value, err := json.Marshal(AddressMessage{Address: string(a), Cursor: cursor, ChainID: p.chainID})
		if err != nil {
			return fmt.Errorf("encode address %s: %w", a, err)
		}
		msg := Msg{
			Topic:   p.topic,
			Key:     []byte(a),
			Value:   value,
			Headers: headers,
		}
		if err := p.pub.Publish(ctx, msg); err != nil {
			return fmt.Errorf("publish address %d of %d: %w", i+1, len(addrs), err)
		}
	}
	p.log.Debugw("published address batch", "cursor", cursor, "count", len(addrs), "topic", p.topic)
	return nil
}
