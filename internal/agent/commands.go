package agent

import (
	"fmt"
	"log"

	"github.com/Masterminds/semver/v3"

	apperrors "github.com/eclipsesource/tabris-js-cli-sub000/internal/errors"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
)

// devToolbarSince is the first runtime version with a developer toolbar.
var devToolbarSince = semver.MustParse("3.6.0")

// handleCommand executes one command pushed by the host. Commands run on
// the read loop, one at a time.
func (a *Agent) handleCommand(msg protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeEvaluate:
		a.handleEvaluate(msg)
	case protocol.MessageTypeReloadApp:
		if a.opts.App == nil {
			a.Message("Reload is not supported by this app")
			return
		}
		a.opts.App.Reload()
	case protocol.MessageTypeToggleDevToolbar:
		a.handleToggleDevToolbar()
	case protocol.MessageTypePrintUITree:
		if a.opts.App == nil {
			a.Message("The UI tree is not available in this app")
			return
		}
		a.Log(a.opts.App.UITree())
	case protocol.MessageTypeClearStorage:
		a.handleClearStorage()
	case protocol.MessageTypeRequestStorage:
		a.enqueue(protocol.NewStorageMessage(a.storageSnapshot()))
	case protocol.MessageTypeLoadStorage:
		a.handleLoadStorage(msg)
	default:
		log.Printf("agent: %v", apperrors.New(apperrors.CodeProtocolUnknownType,
			fmt.Sprintf("unknown command %q", msg.Type)))
	}
}

// handleEvaluate runs the source and reports the outcome. Exactly one
// enabling action-response follows, whatever happened.
func (a *Agent) handleEvaluate(msg protocol.Message) {
	defer a.enqueue(protocol.NewActionResponseMessage(true))

	var p protocol.EvaluateParameter
	if err := msg.Decode(&p); err != nil {
		a.Warn(apperrors.GetMessage(err))
		return
	}
	if a.opts.Evaluator == nil {
		a.Warn(apperrors.GetMessage(apperrors.New(apperrors.CodeEvalUnavailable,
			"this app cannot evaluate code")))
		return
	}

	result, err := a.opts.Evaluator.Evaluate(p.Value)
	if err != nil {
		a.Warn(apperrors.GetMessage(err))
		return
	}
	a.ReturnValue(result)
}

func (a *Agent) handleToggleDevToolbar() {
	v, err := semver.NewVersion(a.opts.Device.Version)
	if err != nil || v.LessThan(devToolbarSince) {
		a.Message(fmt.Sprintf("The developer toolbar requires version %s or later", devToolbarSince))
		return
	}
	if a.opts.App == nil {
		a.Message("The developer toolbar is not available in this app")
		return
	}
	a.opts.App.ToggleDevToolbar()
}

func (a *Agent) handleClearStorage() {
	a.opts.LocalStorage.Clear()
	if secure := a.secureStorage(); secure != nil {
		secure.Clear()
	}
}

// handleLoadStorage replaces the device stores with a snapshot taken on the
// same platform. A mismatch is reported and changes nothing.
func (a *Agent) handleLoadStorage(msg protocol.Message) {
	var p protocol.LoadStorageParameter
	if err := msg.Decode(&p); err != nil {
		a.Warn(apperrors.GetMessage(err))
		return
	}

	if p.Storage.Platform != a.opts.Device.Platform {
		a.Message(apperrors.GetMessage(apperrors.PlatformMismatch(p.Storage.Platform, a.opts.Device.Platform)))
		return
	}

	a.opts.LocalStorage.Replace(p.Storage.LocalStorage)
	if secure := a.secureStorage(); secure != nil {
		secure.Replace(p.Storage.SecureStorage)
	}
	a.Message(fmt.Sprintf("Storage loaded from %s", p.Path))
}

func (a *Agent) storageSnapshot() protocol.StorageSnapshot {
	snap := protocol.StorageSnapshot{
		Platform:     a.opts.Device.Platform,
		LocalStorage: a.opts.LocalStorage.Items(),
	}
	if secure := a.secureStorage(); secure != nil {
		snap.SecureStorage = secure.Items()
	}
	return snap
}

// secureStorage returns the secure store if it takes part in storage
// transfer on this platform.
func (a *Agent) secureStorage() Store {
	if a.opts.SecureStorage == nil || !hasSecureStorage(a.opts.Device.Platform) {
		return nil
	}
	return a.opts.SecureStorage
}
