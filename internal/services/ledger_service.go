// internal/services/ledger_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medvault/medvault-backend/internal/config"
	"github.com/medvault/medvault-backend/internal/utils"
)

// GrantTx describes an access grant to be recorded on the ledger.
type GrantTx struct {
	PractitionerAddress string `json:"practitioner_address"`
	PatientChainID      string `json:"patient_chain_id"`
	RecordID            *int64 `json:"record_id,omitempty"`
	AccessLevel         string `json:"access_level"`
	DurationMs          int64  `json:"duration_ms"`
}

// RevokeTx withdraws a previously dispatched grant.
type RevokeTx struct {
	ApprovalID          uuid.UUID `json:"approval_id"`
	PractitionerAddress string    `json:"practitioner_address"`
	PatientChainID      string    `json:"patient_chain_id"`
	RecordID            *int64    `json:"record_id,omitempty"`
}

// LedgerBridge dispatches grant and revoke operations to the chain gateway
// that actually enforces access. Calls carry a bounded timeout.
type LedgerBridge interface {
	DispatchGrant(ctx context.Context, tx GrantTx) (string, error)
	DispatchRevoke(ctx context.Context, tx RevokeTx) (string, error)
}

type LedgerService struct {
	config *config.Config
	client *http.Client
}

func NewLedgerService(cfg *config.Config) *LedgerService {
	timeout := time.Duration(cfg.Ledger.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &LedgerService{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type dispatchResponse struct {
	TxHash string `json:"tx_hash"`
}

func (s *LedgerService) DispatchGrant(ctx context.Context, tx GrantTx) (string, error) {
	payload := map[string]interface{}{
		"type":                 "access_grant",
		"contract":             s.config.Ledger.ContractAddress,
		"practitioner_address": tx.PractitionerAddress,
		"patient_chain_id":     tx.PatientChainID,
		"access_level":         tx.AccessLevel,
		"duration_ms":          tx.DurationMs,
		"timestamp":            time.Now().Unix(),
	}
	if tx.RecordID != nil {
		payload["record_id"] = *tx.RecordID
	}

	return s.dispatch(ctx, "/grants", payload)
}

func (s *LedgerService) DispatchRevoke(ctx context.Context, tx RevokeTx) (string, error) {
	payload := map[string]interface{}{
		"type":                 "access_revoke",
		"contract":             s.config.Ledger.ContractAddress,
		"approval_id":          tx.ApprovalID.String(),
		"practitioner_address": tx.PractitionerAddress,
		"patient_chain_id":     tx.PatientChainID,
		"timestamp":            time.Now().Unix(),
	}
	if tx.RecordID != nil {
		payload["record_id"] = *tx.RecordID
	}

	return s.dispatch(ctx, "/revokes", payload)
}

func (s *LedgerService) dispatch(ctx context.Context, path string, payload map[string]interface{}) (string, error) {
	if s.config.Ledger.RPC_URL == "" {
		// No gateway configured (local development): simulate the dispatch
		// with a deterministic hash so downstream flows stay exercisable.
		hash := s.generateHash(payload)
		logrus.WithFields(logrus.Fields{
			"path":    path,
			"tx_hash": hash,
		}).Info("Ledger gateway not configured, simulated dispatch")
		return hash, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode ledger payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Ledger.RPC_URL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("ledger dispatch returned status %d", resp.StatusCode)
	}

	var result dispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode ledger response: %w", err)
	}
	if result.TxHash == "" {
		return "", fmt.Errorf("ledger dispatch returned no tx hash")
	}

	return result.TxHash, nil
}

func (s *LedgerService) generateHash(data map[string]interface{}) string {
	return utils.HashString(fmt.Sprintf("%+v", data))
}
