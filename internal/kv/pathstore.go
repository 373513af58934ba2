package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgallion1/sopmaster/internal/pathstore"
)

var errNotJSON = errors.New("pathstore values must be JSON")

// Pathstore stores entries as nodes under a key prefix on a remote pathstore service.
type Pathstore struct {
	client *pathstore.Client
	prefix string
}

func NewPathstore(client *pathstore.Client, prefix string) *Pathstore {
	return &Pathstore{client: client, prefix: prefix}
}

func (p *Pathstore) path(key string) string {
	if p.prefix == "" {
		return key
	}
	return p.prefix + "/" + key
}

func (p *Pathstore) Get(ctx context.Context, key string) ([]byte, error) {
	node, err := p.client.GetNode(ctx, p.path(key))
	if errors.Is(err, pathstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return node.Value, nil
}

func (p *Pathstore) Put(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("put %s: %w", key, errNotJSON)
	}
	return p.client.PutNode(ctx, p.path(key), pathstore.NodeRequest{
		Value:  json.RawMessage(value),
		Source: "sopmaster",
	})
}

func (p *Pathstore) Delete(ctx context.Context, key string) error {
	return p.client.DeleteNode(ctx, p.path(key))
}

func (p *Pathstore) Close() error {
	p.client.Close()
	return nil
}
