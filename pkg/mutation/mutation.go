// Package mutation writes keys and values to the substrate and enforces
// modifier policy. Multi-message writes are not atomic: a failure part way
// through leaves whatever was already posted or deleted.
package mutation

import (
	"context"

	"slackdb/pkg/kverr"
	"slackdb/pkg/logger"
	"slackdb/pkg/models"
	"slackdb/pkg/resolver"
	"slackdb/pkg/schema"
	"slackdb/pkg/substrate"
)

// Substrate is the slice of the substrate the engine writes through.
type Substrate interface {
	substrate.Writer
	substrate.Threads
}

type Options struct {
	// WipeConcurrency caps in-flight deletes per wipe. Zero is unbounded.
	WipeConcurrency int
	// PageSize is the reply page limit used when collecting a thread.
	PageSize int
}

type Engine struct {
	sub  Substrate
	res  resolver.Resolver
	opts Options
}

func New(sub Substrate, res resolver.Resolver, opts Options) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = 200
	}
	return &Engine{sub: sub, res: res, opts: opts}
}

// Create posts a new key message followed by each value as a reply, in order.
// An older key with the same phrase is shadowed, not removed.
func (e *Engine) Create(ctx context.Context, scope models.Scope, phrase string, values []string, meta models.Metadata) (models.Key, error) {
	const op = "create"
	if err := checkPhrase(op, phrase); err != nil {
		return models.Key{}, err
	}
	if err := checkValues(op, values); err != nil {
		return models.Key{}, err
	}
	text, err := schema.KeyText(phrase, meta)
	if err != nil {
		return models.Key{}, err
	}
	if d, ok := schema.Decode(text); !ok || d.Phrase != phrase {
		return models.Key{}, kverr.Errorf(kverr.Schema, op, "phrase %q does not survive encoding", phrase)
	}
	msg, err := e.sub.PostMessage(ctx, scope.ChannelID, text, "")
	if err != nil {
		return models.Key{}, kverr.Wrap(kverr.Upstream, op, err, "post key message")
	}
	key := models.Key{
		Server:      scope.Server,
		ChannelID:   scope.ChannelID,
		ChannelName: scope.ChannelName,
		Phrase:      phrase,
		TS:          msg.TS,
		Metadata:    meta,
	}
	if err := e.post(ctx, op, key, values); err != nil {
		return key, err
	}
	logger.Info("key_created", "server", scope.Server, "channel", scope.ChannelName, "phrase", phrase, "ts", key.TS, "type", meta.Type, "values", len(values))
	return key, nil
}

// Append resolves the key among the bot's own messages and posts values as
// further replies.
func (e *Engine) Append(ctx context.Context, scope models.Scope, phrase string, values []string) (models.Key, error) {
	const op = "append"
	if err := checkValues(op, values); err != nil {
		return models.Key{}, err
	}
	key, err := e.res.Resolve(ctx, scope, phrase, true)
	if err != nil {
		return models.Key{}, err
	}
	return key, e.AppendKey(ctx, key, values)
}

// AppendKey posts values under an already resolved key.
func (e *Engine) AppendKey(ctx context.Context, key models.Key, values []string) error {
	const op = "append"
	if err := checkValues(op, values); err != nil {
		return err
	}
	if key.Metadata.Has(models.TagConstant) {
		return kverr.Errorf(kverr.Forbidden, op, "key %q is constant", key.Phrase)
	}
	if err := e.post(ctx, op, key, values); err != nil {
		return err
	}
	logger.Debug("key_appended", "channel", key.ChannelName, "phrase", key.Phrase, "ts", key.TS, "values", len(values))
	return nil
}

// Update replaces every reply of the key with values. The key message stays.
// If the wipe fails part way nothing new is posted.
func (e *Engine) Update(ctx context.Context, scope models.Scope, phrase string, values []string) (models.Key, error) {
	const op = "update"
	if err := checkValues(op, values); err != nil {
		return models.Key{}, err
	}
	key, err := e.res.Resolve(ctx, scope, phrase, false)
	if err != nil {
		return models.Key{}, err
	}
	if key.Metadata.Has(models.TagConstant) {
		return key, kverr.Errorf(kverr.Forbidden, op, "key %q is constant", phrase)
	}
	if _, err := e.Wipe(ctx, key, false); err != nil {
		return key, err
	}
	if err := e.post(ctx, op, key, values); err != nil {
		return key, err
	}
	logger.Info("key_updated", "channel", key.ChannelName, "phrase", phrase, "ts", key.TS, "values", len(values))
	return key, nil
}

// Delete removes the key message and its whole thread.
func (e *Engine) Delete(ctx context.Context, scope models.Scope, phrase string) ([]models.DeleteResult, error) {
	const op = "delete"
	key, err := e.res.Resolve(ctx, scope, phrase, false)
	if err != nil {
		return nil, err
	}
	if key.Metadata.Has(models.TagUndeletable) {
		return nil, kverr.Errorf(kverr.Forbidden, op, "key %q is undeletable", phrase)
	}
	results, err := e.Wipe(ctx, key, true)
	if err == nil {
		logger.Info("key_deleted", "channel", key.ChannelName, "phrase", phrase, "ts", key.TS, "messages", len(results))
	}
	return results, err
}

func (e *Engine) post(ctx context.Context, op string, key models.Key, values []string) error {
	for i, v := range values {
		if _, err := e.sub.PostMessage(ctx, key.ChannelID, v, key.TS); err != nil {
			return kverr.Wrap(kverr.Upstream, op, err, "post value %d of %d", i+1, len(values))
		}
	}
	return nil
}

func checkPhrase(op, phrase string) error {
	if phrase == "" {
		return kverr.Errorf(kverr.Schema, op, "empty key phrase")
	}
	if schema.MatchesSchema(phrase) {
		return kverr.Errorf(kverr.Schema, op, "key phrase %q already carries a schema", phrase)
	}
	return nil
}

func checkValues(op string, values []string) error {
	for i, v := range values {
		if schema.MatchesSchema(v) {
			return kverr.Errorf(kverr.Schema, op, "value %d (%q) would read back as a key", i, v)
		}
	}
	return nil
}
