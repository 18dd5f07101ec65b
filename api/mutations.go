package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"botlink/engine"
)

// writeEngineError maps engine sentinel errors to HTTP status codes.
func (h *handlers) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrAlreadyExists):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrSaveFailed):
		h.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handlers) requireEngine(w http.ResponseWriter) bool {
	if h.engine == nil {
		h.writeError(w, http.StatusServiceUnavailable, "mutation API not available")
		return false
	}
	return true
}

func nameParam(r *http.Request) string {
	name := chi.URLParam(r, "name")
	name, _ = url.PathUnescape(name)
	return name
}

// BrokerResponse summarizes one configured broker.
type BrokerResponse struct {
	Kind    string `json:"kind"` // mqtt, valkey, kafka
	Name    string `json:"name"`
	Address string `json:"address"`
	Enabled bool   `json:"enabled"`
	Running bool   `json:"running"`
}

func (h *handlers) handleListBrokers(w http.ResponseWriter, r *http.Request) {
	response := make([]BrokerResponse, 0)

	for _, pub := range h.managers.GetMQTTMgr().List() {
		cfg := pub.Config()
		response = append(response, BrokerResponse{
			Kind:    "mqtt",
			Name:    cfg.Name,
			Address: pub.Address(),
			Enabled: cfg.Enabled,
			Running: pub.IsRunning(),
		})
	}
	for _, pub := range h.managers.GetValkeyMgr().List() {
		cfg := pub.Config()
		response = append(response, BrokerResponse{
			Kind:    "valkey",
			Name:    cfg.Name,
			Address: pub.Address(),
			Enabled: cfg.Enabled,
			Running: pub.IsRunning(),
		})
	}
	for _, prod := range h.managers.GetKafkaMgr().List() {
		cfg := prod.Config()
		addr := ""
		if len(cfg.Brokers) > 0 {
			addr = cfg.Brokers[0]
		}
		response = append(response, BrokerResponse{
			Kind:    "kafka",
			Name:    cfg.Name,
			Address: addr,
			Enabled: cfg.Enabled,
			Running: prod.GetStatus().String() == "Connected",
		})
	}

	h.writeJSON(w, response)
}

// --- MQTT ---

type mqttRequest struct {
	Name     string `json:"name"`
	Broker   string `json:"broker"`
	Port     int    `json:"port"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Selector string `json:"selector"`
	UseTLS   bool   `json:"use_tls"`
	Enabled  bool   `json:"enabled"`
}

func (h *handlers) handleCreateMQTT(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	var req mqttRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.engine.CreateMQTT(engine.MQTTCreateRequest{
		Name:     req.Name,
		Broker:   req.Broker,
		Port:     req.Port,
		ClientID: req.ClientID,
		Username: req.Username,
		Password: req.Password,
		Selector: req.Selector,
		UseTLS:   req.UseTLS,
		Enabled:  req.Enabled,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, map[string]string{"name": req.Name})
}

func (h *handlers) handleUpdateMQTT(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	var req mqttRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := nameParam(r)
	err := h.engine.UpdateMQTT(name, engine.MQTTUpdateRequest{
		Broker:   req.Broker,
		Port:     req.Port,
		ClientID: req.ClientID,
		Username: req.Username,
		Password: req.Password,
		Selector: req.Selector,
		UseTLS:   req.UseTLS,
		Enabled:  req.Enabled,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"name": name})
}

func (h *handlers) handleDeleteMQTT(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	if err := h.engine.DeleteMQTT(nameParam(r)); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Valkey ---

type valkeyRequest struct {
	Name           string `json:"name"`
	Address        string `json:"address"`
	Password       string `json:"password"`
	Database       int    `json:"database"`
	Selector       string `json:"selector"`
	KeyTTL         string `json:"key_ttl"`
	UseTLS         bool   `json:"use_tls"`
	PublishChanges bool   `json:"publish_changes"`
	Enabled        bool   `json:"enabled"`
}

func (req *valkeyRequest) keyTTL() time.Duration {
	if req.KeyTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(req.KeyTTL)
	if err != nil {
		return 0
	}
	return d
}

func (h *handlers) handleCreateValkey(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	var req valkeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.engine.CreateValkey(engine.ValkeyCreateRequest{
		Name:           req.Name,
		Address:        req.Address,
		Password:       req.Password,
		Database:       req.Database,
		Selector:       req.Selector,
		KeyTTL:         req.keyTTL(),
		UseTLS:         req.UseTLS,
		PublishChanges: req.PublishChanges,
		Enabled:        req.Enabled,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, map[string]string{"name": req.Name})
}

func (h *handlers) handleUpdateValkey(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	var req valkeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := nameParam(r)
	err := h.engine.UpdateValkey(name, engine.ValkeyUpdateRequest{
		Address:        req.Address,
		Password:       req.Password,
		Database:       req.Database,
		Selector:       req.Selector,
		KeyTTL:         req.keyTTL(),
		UseTLS:         req.UseTLS,
		PublishChanges: req.PublishChanges,
		Enabled:        req.Enabled,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"name": name})
}

func (h *handlers) handleDeleteValkey(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	if err := h.engine.DeleteValkey(nameParam(r)); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Kafka ---

type kafkaRequest struct {
	Name             string   `json:"name"`
	Brokers          []string `json:"brokers"`
	UseTLS           bool     `json:"use_tls"`
	TLSSkipVerify    bool     `json:"tls_skip_verify"`
	SASLMechanism    string   `json:"sasl_mechanism"`
	Username         string   `json:"username"`
	Password         string   `json:"password"`
	Selector         string   `json:"selector"`
	AutoCreateTopics bool     `json:"auto_create_topics"`
	Enabled          bool     `json:"enabled"`
	RequiredAcks     int      `json:"required_acks"`
	MaxRetries       int      `json:"max_retries"`
	RetryBackoff     string   `json:"retry_backoff"`
}

func (req *kafkaRequest) retryBackoff() time.Duration {
	if req.RetryBackoff == "" {
		return 0
	}
	d, err := time.ParseDuration(req.RetryBackoff)
	if err != nil {
		return 0
	}
	return d
}

func (h *handlers) handleCreateKafka(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	var req kafkaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.engine.CreateKafka(engine.KafkaCreateRequest{
		Name:             req.Name,
		Brokers:          req.Brokers,
		UseTLS:           req.UseTLS,
		TLSSkipVerify:    req.TLSSkipVerify,
		SASLMechanism:    req.SASLMechanism,
		Username:         req.Username,
		Password:         req.Password,
		Selector:         req.Selector,
		AutoCreateTopics: req.AutoCreateTopics,
		Enabled:          req.Enabled,
		RequiredAcks:     req.RequiredAcks,
		MaxRetries:       req.MaxRetries,
		RetryBackoff:     req.retryBackoff(),
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, map[string]string{"name": req.Name})
}

func (h *handlers) handleUpdateKafka(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	var req kafkaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := nameParam(r)
	err := h.engine.UpdateKafka(name, engine.KafkaUpdateRequest{
		Brokers:          req.Brokers,
		UseTLS:           req.UseTLS,
		TLSSkipVerify:    req.TLSSkipVerify,
		SASLMechanism:    req.SASLMechanism,
		Username:         req.Username,
		Password:         req.Password,
		Selector:         req.Selector,
		AutoCreateTopics: req.AutoCreateTopics,
		Enabled:          req.Enabled,
		RequiredAcks:     req.RequiredAcks,
		MaxRetries:       req.MaxRetries,
		RetryBackoff:     req.retryBackoff(),
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"name": name})
}

func (h *handlers) handleDeleteKafka(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	if err := h.engine.DeleteKafka(nameParam(r)); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- System ---

type namespaceRequest struct {
	Namespace string `json:"namespace"`
}

func (h *handlers) handleSetNamespace(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	var req namespaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Namespace == "" {
		h.writeError(w, http.StatusBadRequest, "namespace is required")
		return
	}

	if err := h.engine.SetNamespace(req.Namespace); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"namespace": req.Namespace})
}
