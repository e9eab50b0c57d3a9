// Package config loads process settings from the environment and channel
// settings from a YAML file.
package config

import (
	"net"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/accordsai/checkoutlane/services/checkout/internal/notify"
	"github.com/accordsai/checkoutlane/services/checkout/internal/order"
)

type Env struct {
	Port           string        `envconfig:"SERVICE_PORT" default:"8086"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	ChannelsFile   string        `envconfig:"ACP_CHANNELS_FILE" default:"channels.yaml"`
	DefaultChannel string        `envconfig:"ACP_DEFAULT_CHANNEL" default:"default"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	PSPTimeout     time.Duration `envconfig:"ACP_PSP_TIMEOUT" default:"30s"`
	WebhookTimeout time.Duration `envconfig:"ACP_WEBHOOK_TIMEOUT" default:"10s"`
	RateLimitRPS   float64       `envconfig:"ACP_RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int           `envconfig:"ACP_RATE_LIMIT_BURST" default:"40"`
	TrustProxy     bool          `envconfig:"ACP_TRUST_PROXY" default:"false"`
	SigTolerance   time.Duration `envconfig:"ACP_SIGNATURE_TOLERANCE" default:"300s"`
}

func LoadEnv() (Env, error) {
	var e Env
	if err := envconfig.Process("", &e); err != nil {
		return Env{}, errors.Wrap(err, "read environment")
	}
	return e, nil
}

// Gateway is the per channel payment gateway configuration: inbound
// credentials, PSP credentials and the agent webhook target.
type Gateway struct {
	PaymentMethodCode    string `yaml:"payment_method_code"`
	BearerToken          string `yaml:"bearer_token"`
	SignatureSecret      string `yaml:"signature_secret"`
	PSPURL               string `yaml:"psp_url"`
	PSPMerchantSecretKey string `yaml:"psp_merchant_secret_key"`
	PSPChargeEndpoint    string `yaml:"psp_charge_endpoint"`
	WebhookURL           string `yaml:"webhook_url"`
	WebhookSecret        string `yaml:"webhook_secret"`
}

type Channel struct {
	Code             string   `yaml:"-"`
	Hostnames        []string `yaml:"hostnames"`
	Currency         string   `yaml:"currency"`
	Locale           string   `yaml:"locale"`
	PermalinkBaseURL string   `yaml:"permalink_base_url"`
	Gateway          Gateway  `yaml:"gateway"`
}

type Product struct {
	Code  string `yaml:"code"`
	Name  string `yaml:"name"`
	Price int64  `yaml:"price"`
}

type ShippingMethod struct {
	Code          string           `yaml:"code"`
	Name          string           `yaml:"name"`
	Description   string           `yaml:"description"`
	Calculator    string           `yaml:"calculator"`
	Configuration map[string]int64 `yaml:"configuration"`
	Countries     []string         `yaml:"countries"`
}

type Catalog struct {
	Products        []Product        `yaml:"products"`
	ShippingMethods []ShippingMethod `yaml:"shipping_methods"`
	Provinces       []string         `yaml:"provinces"`
	TaxRateBps      int64            `yaml:"tax_rate_bps"`
}

type File struct {
	Channels map[string]*Channel `yaml:"channels"`
	Catalog  Catalog             `yaml:"catalog"`
}

func LoadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read channels file %s", path)
	}
	return ParseFile(raw)
}

func ParseFile(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parse channels file")
	}
	if len(f.Channels) == 0 {
		return nil, errors.New("channels file defines no channels")
	}
	for code, ch := range f.Channels {
		if ch == nil {
			return nil, errors.Errorf("channel %q is empty", code)
		}
		ch.Code = code
		if strings.TrimSpace(ch.Currency) == "" {
			return nil, errors.Errorf("channel %q: currency is required", code)
		}
		ch.Currency = strings.ToUpper(strings.TrimSpace(ch.Currency))
	}
	return &f, nil
}

func (c Catalog) Build() *order.Catalog {
	products := make([]order.Product, 0, len(c.Products))
	for _, p := range c.Products {
		products = append(products, order.Product{Code: p.Code, Name: p.Name, Price: p.Price})
	}
	methods := make([]order.ShippingMethod, 0, len(c.ShippingMethods))
	for _, m := range c.ShippingMethods {
		methods = append(methods, order.ShippingMethod{
			Code:          m.Code,
			Name:          m.Name,
			Description:   m.Description,
			Calculator:    m.Calculator,
			Configuration: m.Configuration,
			Countries:     m.Countries,
		})
	}
	return order.NewCatalog(products, methods, c.Provinces, c.TaxRateBps)
}

// Channels resolves the channel serving a request host.
type Channels struct {
	byCode     map[string]*Channel
	byHost     map[string]*Channel
	defaultKey string
}

func NewChannels(f *File, defaultCode string) (*Channels, error) {
	c := &Channels{byCode: f.Channels, byHost: map[string]*Channel{}, defaultKey: defaultCode}
	if _, ok := f.Channels[defaultCode]; !ok {
		return nil, errors.Errorf("default channel %q is not defined", defaultCode)
	}
	for _, ch := range f.Channels {
		for _, h := range ch.Hostnames {
			c.byHost[strings.ToLower(h)] = ch
		}
	}
	return c, nil
}

func (c *Channels) ForHost(host string) *Channel {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if ch, ok := c.byHost[strings.ToLower(host)]; ok {
		return ch
	}
	return c.byCode[c.defaultKey]
}

func (c *Channels) Get(code string) (*Channel, bool) {
	ch, ok := c.byCode[code]
	return ch, ok
}

// PermalinkBase is the storefront URL orders of a channel link back to.
func (c *Channels) PermalinkBase(code string) string {
	if ch, ok := c.byCode[code]; ok {
		return ch.PermalinkBaseURL
	}
	return ""
}

// WebhookTarget is the agent webhook for a channel. A channel without a
// webhook URL has none.
func (c *Channels) WebhookTarget(code string) (notify.Target, bool) {
	ch, ok := c.byCode[code]
	if !ok || strings.TrimSpace(ch.Gateway.WebhookURL) == "" {
		return notify.Target{}, false
	}
	return notify.Target{URL: ch.Gateway.WebhookURL, Secret: ch.Gateway.WebhookSecret}, true
}
