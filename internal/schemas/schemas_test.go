package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateManifestAccepts(t *testing.T) {
	valid := []byte(`{
		"version": 1,
		"commit_tree_hash": "deadbeef",
		"timestamp_ns": 123,
		"metrics": {"ldlj": -1.2, "spec_entropy": 2.1, "curv_entropy": 0.5, "throughput": 30, "ncd": 0.8, "burstiness": 0.1},
		"cns_score": 70,
		"credits_charged": 5.5,
		"credits_debited": 5.5,
		"difficulty_bits": 12,
		"nonce": 99,
		"pubkey": "cHVia2V5",
		"signature": "c2lnbmF0dXJl"
	}`)
	assert.NoError(t, ValidateManifest(valid))
}

func TestValidateManifestRejectsUnknownField(t *testing.T) {
	invalid := []byte(`{"version":1,"bogus_field":true}`)
	assert.Error(t, ValidateManifest(invalid))
}

func TestValidateManifestRejectsMissingRequiredField(t *testing.T) {
	invalid := []byte(`{"version":1,"commit_tree_hash":"deadbeef"}`)
	assert.Error(t, ValidateManifest(invalid))
}

func TestValidateConfigAccepts(t *testing.T) {
	valid := []byte(`{"version":1,"ring":{"ring_capacity":2048},"logging":{"level":"info","format":"text","output":"stdout"}}`)
	assert.NoError(t, ValidateConfig(valid))
}

func TestValidateConfigRejectsBadEnum(t *testing.T) {
	invalid := []byte(`{"logging":{"level":"verbose"}}`)
	assert.Error(t, ValidateConfig(invalid))
}

func TestValidateTelemetryEventAccepts(t *testing.T) {
	valid := []byte(`{"type":"focus_gained","file_path":"main.go","timestamp_ms":100}`)
	assert.NoError(t, ValidateTelemetryEvent(valid))
}

func TestValidateTelemetryEventRejectsUnknownType(t *testing.T) {
	invalid := []byte(`{"type":"teleport","timestamp_ms":1}`)
	assert.Error(t, ValidateTelemetryEvent(invalid))
}
