package engine

import (
	"context"
	"fmt"
	"strings"

	"dofaline/internal/config"
	"dofaline/internal/events"
	"dofaline/internal/syncer"
)

// Pull replaces both local collections with the remote tables.
func (e Engine) Pull(ctx context.Context, actorID string) (syncer.PullResult, error) {
	res, err := e.Sync.Pull(ctx)
	if err != nil {
		return res, err
	}
	e.record(ctx, events.SyncPulled, events.KindRemote, "", actorID, events.EventPayload{
		"records": res.Records, "indicators": res.Indicators,
	})
	return res, nil
}

// PushAll uploads both full collections.
func (e Engine) PushAll(ctx context.Context, actorID string) error {
	if err := e.Sync.PushAll(ctx); err != nil {
		return err
	}
	e.record(ctx, events.SyncPushed, events.KindRemote, "", actorID, events.EventPayload{
		"records": e.Records.Len(), "indicators": e.Indicators.Len(),
	})
	return nil
}

// SyncNow uploads local state and then downloads the merged remote state.
func (e Engine) SyncNow(ctx context.Context, actorID string) (syncer.PullResult, error) {
	if err := e.PushAll(ctx, actorID); err != nil {
		return syncer.PullResult{}, err
	}
	return e.Pull(ctx, actorID)
}

func (e Engine) SyncStatus() syncer.Status {
	return e.Sync.Status()
}

func (e Engine) DismissSyncError() {
	e.Sync.DismissError()
}

// RemoteSettings returns the effective remote configuration.
func (e Engine) RemoteSettings() config.RemoteConfig {
	return e.Sync.Config()
}

// RemoteSettingsUpdate changes the persisted remote settings. Nil fields keep
// their current value; an empty string clears the stored value.
type RemoteSettingsUpdate struct {
	URL             *string
	Key             *string
	RecordsTable    *string
	IndicatorsTable *string
}

// ConfigureRemote persists the settings and applies them to the syncer.
func (e Engine) ConfigureRemote(ctx context.Context, upd RemoteSettingsUpdate, actorID string) (config.RemoteConfig, error) {
	stored, err := e.Repo.GetSettings(ctx)
	if err != nil {
		return config.RemoteConfig{}, fmt.Errorf("read settings: %w", err)
	}
	set := func(key string, v *string) {
		if v != nil {
			stored[key] = strings.TrimSpace(*v)
		}
	}
	set(config.SettingURL, upd.URL)
	set(config.SettingKey, upd.Key)
	set(config.SettingRecordsTable, upd.RecordsTable)
	set(config.SettingIndicatorsTable, upd.IndicatorsTable)

	next := e.Config.Remote.WithSettings(stored)
	if err := next.Validate(); err != nil {
		return config.RemoteConfig{}, invalid("url", "%s", err.Error())
	}
	if err := e.Repo.PutSettings(ctx, stored); err != nil {
		return config.RemoteConfig{}, fmt.Errorf("save settings: %w", err)
	}
	e.Sync.Configure(next)
	e.record(ctx, events.SettingsUpdated, events.KindSettings, "remote", actorID, events.EventPayload{
		"url": next.URL, "records_table": next.RecordsTable, "indicators_table": next.IndicatorsTable, "enabled": next.Enabled(),
	})
	return next, nil
}
