package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid    = errors.New("stripe config invalid")
	ErrRequestFailed    = errors.New("stripe request failed")
	ErrRequestRejected  = errors.New("stripe request rejected")
	ErrResponseInvalid  = errors.New("stripe response invalid")
	ErrSignatureInvalid = errors.New("stripe signature invalid")
)

const (
	defaultAPIBaseURL        = "https://api.stripe.com"
	defaultTimeout           = 12 * time.Second
	defaultWebhookToleranceS = 300
	defaultConnectCountry    = "US"
)

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {},
	"CLP": {},
	"JPY": {},
	"KRW": {},
	"PYG": {},
	"VND": {},
	"XAF": {},
	"XOF": {},
}

// Config Stripe 配置。
type Config struct {
	SecretKey               string `json:"secret_key"`
	WebhookSecret           string `json:"webhook_secret"`
	APIBaseURL              string `json:"api_base_url"`
	WebhookToleranceSeconds int    `json:"webhook_tolerance_seconds"`
	ConnectCountry          string `json:"connect_country"`
}

// TransferInput 平台向关联账户转账输入。
type TransferInput struct {
	AmountMinor    int64
	Currency       string
	Destination    string
	Description    string
	TransferGroup  string
	IdempotencyKey string
}

// TransferResult 转账结果。
type TransferResult struct {
	TransferID    string
	AmountMinor   int64
	Currency      string
	Destination   string
	TransferGroup string
	Raw           map[string]interface{}
}

// SubscriptionResult 订阅查询结果。
type SubscriptionResult struct {
	SubscriptionID     string
	CustomerID         string
	Status             string
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
}

// WebhookEvent Stripe Webhook 解析结果，按对象类型填充对应字段。
type WebhookEvent struct {
	EventID    string
	EventType  string
	ObjectType string
	ObjectID   string

	// checkout.session
	Mode string

	// invoice
	InvoiceID     string
	BillingReason string
	AmountPaid    string

	// 通用
	SubscriptionID     string
	CustomerID         string
	Currency           string
	Status             string
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	Metadata           map[string]string
	Raw                map[string]interface{}
}

// Normalize 去除空白并补全默认值。
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.APIBaseURL = strings.TrimSpace(c.APIBaseURL)
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.WebhookToleranceSeconds <= 0 {
		c.WebhookToleranceSeconds = defaultWebhookToleranceS
	}
	c.ConnectCountry = strings.ToUpper(strings.TrimSpace(c.ConnectCountry))
	if c.ConnectCountry == "" {
		c.ConnectCountry = defaultConnectCountry
	}
}

// ValidateConfig 校验调用 API 所需配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return fmt.Errorf("%w: api_base_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// CreateTransfer 创建平台转账，4xx 视为明确拒绝。
func CreateTransfer(ctx context.Context, cfg *Config, input TransferInput) (*TransferResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if input.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrConfigInvalid)
	}
	destination := strings.TrimSpace(input.Destination)
	if destination == "" {
		return nil, fmt.Errorf("%w: destination is required", ErrConfigInvalid)
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(input.AmountMinor, 10))
	form.Set("currency", currency)
	form.Set("destination", destination)
	if description := strings.TrimSpace(input.Description); description != "" {
		form.Set("description", description)
	}
	if group := strings.TrimSpace(input.TransferGroup); group != "" {
		form.Set("transfer_group", group)
		form.Set("metadata[payout_id]", group)
	}

	respBody, statusCode, err := doFormRequest(ctx, cfg, http.MethodPost, "/v1/transfers", form, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if err := checkStatus("create transfer", statusCode, respBody); err != nil {
		return nil, err
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := parseTransfer(raw)
	if result.TransferID == "" {
		return nil, fmt.Errorf("%w: missing transfer id", ErrResponseInvalid)
	}
	return result, nil
}

// FindTransferByGroup 按 transfer_group 查找转账，不存在返回 nil, nil。
func FindTransferByGroup(ctx context.Context, cfg *Config, transferGroup string) (*TransferResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	transferGroup = strings.TrimSpace(transferGroup)
	if transferGroup == "" {
		return nil, fmt.Errorf("%w: transfer_group is required", ErrConfigInvalid)
	}
	query := url.Values{}
	query.Set("transfer_group", transferGroup)
	query.Set("limit", "1")

	respBody, statusCode, err := doGetRequest(ctx, cfg, "/v1/transfers?"+query.Encode())
	if err != nil {
		return nil, err
	}
	if err := checkStatus("list transfers", statusCode, respBody); err != nil {
		return nil, err
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	items, _ := raw["data"].([]interface{})
	for _, item := range items {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		result := parseTransfer(itemMap)
		if result.TransferID != "" {
			return result, nil
		}
	}
	return nil, nil
}

// CreateExpressAccount 创建 Express 关联账户并申请转账能力，返回账户 ID。
func CreateExpressAccount(ctx context.Context, cfg *Config, email string) (string, error) {
	if err := ValidateConfig(cfg); err != nil {
		return "", err
	}
	form := url.Values{}
	form.Set("type", "express")
	form.Set("country", cfg.ConnectCountry)
	form.Set("capabilities[transfers][requested]", "true")
	if email = strings.TrimSpace(email); email != "" {
		form.Set("email", email)
	}

	respBody, statusCode, err := doFormRequest(ctx, cfg, http.MethodPost, "/v1/accounts", form, "")
	if err != nil {
		return "", err
	}
	if err := checkStatus("create account", statusCode, respBody); err != nil {
		return "", err
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return "", err
	}
	accountID := readString(raw, "id")
	if accountID == "" {
		return "", fmt.Errorf("%w: missing account id", ErrResponseInvalid)
	}
	return accountID, nil
}

// CreateAccountLink 创建关联账户入驻链接。
func CreateAccountLink(ctx context.Context, cfg *Config, accountID, refreshURL, returnURL string) (string, error) {
	if err := ValidateConfig(cfg); err != nil {
		return "", err
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", fmt.Errorf("%w: account is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(returnURL)); err != nil {
		return "", fmt.Errorf("%w: return_url is invalid", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(refreshURL)); err != nil {
		return "", fmt.Errorf("%w: refresh_url is invalid", ErrConfigInvalid)
	}
	form := url.Values{}
	form.Set("account", accountID)
	form.Set("refresh_url", strings.TrimSpace(refreshURL))
	form.Set("return_url", strings.TrimSpace(returnURL))
	form.Set("type", "account_onboarding")

	respBody, statusCode, err := doFormRequest(ctx, cfg, http.MethodPost, "/v1/account_links", form, "")
	if err != nil {
		return "", err
	}
	if err := checkStatus("create account link", statusCode, respBody); err != nil {
		return "", err
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return "", err
	}
	link := readString(raw, "url")
	if link == "" {
		return "", fmt.Errorf("%w: missing account link url", ErrResponseInvalid)
	}
	return link, nil
}

// RetrieveSubscription 查询订阅详情。
func RetrieveSubscription(ctx context.Context, cfg *Config, subscriptionID string) (*SubscriptionResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, fmt.Errorf("%w: subscription id is required", ErrConfigInvalid)
	}
	respBody, statusCode, err := doGetRequest(ctx, cfg, "/v1/subscriptions/"+url.PathEscape(subscriptionID))
	if err != nil {
		return nil, err
	}
	if err := checkStatus("retrieve subscription", statusCode, respBody); err != nil {
		return nil, err
	}
	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &SubscriptionResult{
		SubscriptionID:     readString(raw, "id"),
		CustomerID:         readString(raw, "customer"),
		Status:             readString(raw, "status"),
		PriceID:            readFirstPriceID(raw),
		CurrentPeriodStart: readUnixTime(raw, "current_period_start"),
		CurrentPeriodEnd:   readUnixTime(raw, "current_period_end"),
		CancelAtPeriodEnd:  readBool(raw, "cancel_at_period_end"),
	}
	if result.SubscriptionID == "" {
		return nil, fmt.Errorf("%w: missing subscription id", ErrResponseInvalid)
	}
	return result, nil
}

// VerifyAndParseWebhook 校验签名并解析账单相关事件。
func VerifyAndParseWebhook(cfg *Config, headers map[string]string, body []byte, now time.Time) (*WebhookEvent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: body is empty", ErrResponseInvalid)
	}
	if now.IsZero() {
		now = time.Now()
	}

	signatureHeader := getHeaderValue(headers, "Stripe-Signature")
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: Stripe-Signature is required", ErrSignatureInvalid)
	}
	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return nil, err
	}
	if cfg.WebhookToleranceSeconds > 0 {
		delta := math.Abs(float64(now.Unix() - timestamp))
		if delta > float64(cfg.WebhookToleranceSeconds) {
			return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
		}
	}
	expected := computeSignature(cfg.WebhookSecret, timestamp, body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: verify failed", ErrSignatureInvalid)
	}

	eventRaw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	eventType := readString(eventRaw, "type")
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrResponseInvalid)
	}
	objectRaw := readMap(readMap(eventRaw, "data"), "object")
	if objectRaw == nil {
		return nil, fmt.Errorf("%w: missing event object", ErrResponseInvalid)
	}

	event := &WebhookEvent{
		EventID:    readString(eventRaw, "id"),
		EventType:  eventType,
		ObjectType: readString(objectRaw, "object"),
		ObjectID:   readString(objectRaw, "id"),
		CustomerID: readString(objectRaw, "customer"),
		Currency:   strings.ToUpper(readString(objectRaw, "currency")),
		Status:     readString(objectRaw, "status"),
		Metadata:   readStringMap(objectRaw, "metadata"),
		Raw:        eventRaw,
	}
	switch event.ObjectType {
	case "checkout.session":
		event.Mode = readString(objectRaw, "mode")
		event.SubscriptionID = readString(objectRaw, "subscription")
	case "invoice":
		event.InvoiceID = event.ObjectID
		event.SubscriptionID = readString(objectRaw, "subscription")
		if event.SubscriptionID == "" {
			// 新版 API 将订阅号挪到 parent.subscription_details
			event.SubscriptionID = readString(readMap(readMap(objectRaw, "parent"), "subscription_details"), "subscription")
		}
		event.BillingReason = readString(objectRaw, "billing_reason")
		if paid := readInt64(objectRaw, "amount_paid"); paid > 0 && event.Currency != "" {
			event.AmountPaid = fromMinorAmount(paid, event.Currency)
		}
		event.PriceID = readInvoicePriceID(objectRaw)
	case "subscription":
		event.SubscriptionID = event.ObjectID
		event.PriceID = readFirstPriceID(objectRaw)
		event.CurrentPeriodStart = readUnixTime(objectRaw, "current_period_start")
		event.CurrentPeriodEnd = readUnixTime(objectRaw, "current_period_end")
		event.CancelAtPeriodEnd = readBool(objectRaw, "cancel_at_period_end")
	}
	return event, nil
}

// ToMinorAmount 金额转最小货币单位。
func ToMinorAmount(amount decimal.Decimal, currency string) (int64, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("%w: amount must be greater than zero", ErrConfigInvalid)
	}
	minor := amount.Shift(int32(currencyScale(currency)))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount precision is invalid", ErrConfigInvalid)
	}
	return minor.IntPart(), nil
}

func fromMinorAmount(minor int64, currency string) string {
	scale := currencyScale(currency)
	return decimal.NewFromInt(minor).Shift(int32(-scale)).StringFixed(int32(scale))
}

func currencyScale(currency string) int {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return 0
	}
	return 2
}

func parseTransfer(raw map[string]interface{}) *TransferResult {
	return &TransferResult{
		TransferID:    readString(raw, "id"),
		AmountMinor:   readInt64(raw, "amount"),
		Currency:      strings.ToUpper(readString(raw, "currency")),
		Destination:   readString(raw, "destination"),
		TransferGroup: readString(raw, "transfer_group"),
		Raw:           raw,
	}
}

// checkStatus 4xx 为明确拒绝，其余非 2xx 结果未知。
func checkStatus(action string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	message := ""
	if raw, err := decodeRawMap(body); err == nil {
		message = readString(readMap(raw, "error"), "message")
	}
	if statusCode >= 400 && statusCode < 500 && statusCode != http.StatusTooManyRequests && statusCode != http.StatusConflict {
		return fmt.Errorf("%w: %s status %d %s", ErrRequestRejected, action, statusCode, message)
	}
	return fmt.Errorf("%w: %s status %d %s", ErrRequestFailed, action, statusCode, message)
}

func doFormRequest(ctx context.Context, cfg *Config, method, path string, form url.Values, idempotencyKey string) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return doRequest(req)
}

func doGetRequest(ctx context.Context, cfg *Config, path string) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SecretKey)
	return doRequest(req)
}

func doRequest(req *http.Request) ([]byte, int, error) {
	resp, err := (&http.Client{Timeout: defaultTimeout}).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func computeSignature(secret string, timestamp int64, body []byte) string {
	payload := strconv.FormatInt(timestamp, 10) + "." + string(body)
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func parseSignatureHeader(signatureHeader string) (int64, []string, error) {
	timestamp := int64(0)
	signatures := make([]string, 0)
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		value := strings.TrimSpace(kv[1])
		switch strings.TrimSpace(kv[0]) {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil || parsed <= 0 {
				return 0, nil, fmt.Errorf("%w: invalid timestamp", ErrSignatureInvalid)
			}
			timestamp = parsed
		case "v1":
			if value != "" {
				signatures = append(signatures, strings.ToLower(value))
			}
		}
	}
	if timestamp <= 0 {
		return 0, nil, fmt.Errorf("%w: timestamp is missing", ErrSignatureInvalid)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: v1 signature is missing", ErrSignatureInvalid)
	}
	return timestamp, signatures, nil
}

func getHeaderValue(headers map[string]string, key string) string {
	for h, value := range headers {
		if strings.EqualFold(strings.TrimSpace(h), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func readFirstPriceID(raw map[string]interface{}) string {
	items, _ := readMap(raw, "items")["data"].([]interface{})
	for _, item := range items {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if priceID := readString(readMap(itemMap, "price"), "id"); priceID != "" {
			return priceID
		}
	}
	return ""
}

func readInvoicePriceID(raw map[string]interface{}) string {
	lines, _ := readMap(raw, "lines")["data"].([]interface{})
	for _, line := range lines {
		lineMap, ok := line.(map[string]interface{})
		if !ok {
			continue
		}
		if priceID := readString(readMap(lineMap, "price"), "id"); priceID != "" {
			return priceID
		}
		if priceID := readString(readMap(readMap(lineMap, "pricing"), "price_details"), "price"); priceID != "" {
			return priceID
		}
	}
	return ""
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	switch typed := raw[key].(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	case map[string]interface{}:
		// 可展开字段展开后取 id
		return readString(typed, "id")
	default:
		return ""
	}
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil {
		return nil
	}
	mapped, _ := raw[key].(map[string]interface{})
	return mapped
}

func readStringMap(raw map[string]interface{}, key string) map[string]string {
	result := make(map[string]string)
	for k, v := range readMap(raw, key) {
		if s, ok := v.(string); ok {
			result[k] = strings.TrimSpace(s)
		}
	}
	return result
}

func readBool(raw map[string]interface{}, key string) bool {
	if raw == nil {
		return false
	}
	value, _ := raw[key].(bool)
	return value
}

func readUnixTime(raw map[string]interface{}, key string) *time.Time {
	seconds := readInt64(raw, key)
	if seconds <= 0 {
		return nil
	}
	t := time.Unix(seconds, 0).UTC()
	return &t
}

func readInt64(raw map[string]interface{}, key string) int64 {
	if raw == nil {
		return 0
	}
	switch typed := raw[key].(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
