package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/accordsai/checkoutlane/pkg/acpclient"
)

func main() {
	app := &cli.App{
		Name:  "acpctl",
		Usage: "drive checkout sessions as an agent",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8086", EnvVars: []string{"ACP_URL"}},
			&cli.StringFlag{Name: "token", EnvVars: []string{"ACP_TOKEN"}, Usage: "bearer token"},
			&cli.StringFlag{Name: "secret", EnvVars: []string{"ACP_SIGNATURE_SECRET"}, Usage: "request signing secret"},
			&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second},
		},
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "open a checkout session",
				Flags: append([]cli.Flag{
					&cli.StringSliceFlag{Name: "item", Usage: "code:quantity (repeatable)", Required: true},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "idempotency-key"},
				}, addressFlags()...),
				Action: func(c *cli.Context) error {
					items, err := parseItems(c.StringSlice("item"))
					if err != nil {
						return err
					}
					in := acpclient.CreateRequest{Items: items, Buyer: buyer(c), FulfillmentAddress: address(c)}
					return run(c, func(ctx context.Context, cl *acpclient.Client) (*acpclient.Session, error) {
						return cl.Create(ctx, in, c.String("idempotency-key"))
					})
				},
			},
			{
				Name:      "get",
				Usage:     "retrieve a checkout session",
				ArgsUsage: "<session-id>",
				Action: func(c *cli.Context) error {
					id, err := sessionID(c)
					if err != nil {
						return err
					}
					return run(c, func(ctx context.Context, cl *acpclient.Client) (*acpclient.Session, error) {
						return cl.Retrieve(ctx, id)
					})
				},
			},
			{
				Name:      "update",
				Usage:     "change items, buyer, address or fulfillment option",
				ArgsUsage: "<session-id>",
				Flags: append([]cli.Flag{
					&cli.StringSliceFlag{Name: "item", Usage: "code:quantity (repeatable, replaces all items)"},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "option", Usage: "fulfillment option id"},
				}, addressFlags()...),
				Action: func(c *cli.Context) error {
					id, err := sessionID(c)
					if err != nil {
						return err
					}
					items, err := parseItems(c.StringSlice("item"))
					if err != nil {
						return err
					}
					in := acpclient.UpdateRequest{
						Items:               items,
						Buyer:               buyer(c),
						FulfillmentAddress:  address(c),
						FulfillmentOptionID: c.String("option"),
					}
					return run(c, func(ctx context.Context, cl *acpclient.Client) (*acpclient.Session, error) {
						return cl.Update(ctx, id, in)
					})
				},
			},
			{
				Name:      "complete",
				Usage:     "pay with a delegated payment token",
				ArgsUsage: "<session-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "payment-token", Required: true},
					&cli.StringFlag{Name: "provider", Value: "stripe"},
					&cli.StringFlag{Name: "email"},
				},
				Action: func(c *cli.Context) error {
					id, err := sessionID(c)
					if err != nil {
						return err
					}
					in := acpclient.CompleteRequest{
						PaymentData: acpclient.PaymentData{Token: c.String("payment-token"), Provider: c.String("provider")},
						Buyer:       buyer(c),
					}
					return run(c, func(ctx context.Context, cl *acpclient.Client) (*acpclient.Session, error) {
						return cl.Complete(ctx, id, in)
					})
				},
			},
			{
				Name:      "cancel",
				Usage:     "cancel a checkout session",
				ArgsUsage: "<session-id>",
				Action: func(c *cli.Context) error {
					id, err := sessionID(c)
					if err != nil {
						return err
					}
					return run(c, func(ctx context.Context, cl *acpclient.Client) (*acpclient.Session, error) {
						return cl.Cancel(ctx, id)
					})
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		failSummary(err)
		os.Exit(1)
	}
}

func addressFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name"},
		&cli.StringFlag{Name: "line1"},
		&cli.StringFlag{Name: "line2"},
		&cli.StringFlag{Name: "city"},
		&cli.StringFlag{Name: "state"},
		&cli.StringFlag{Name: "country"},
		&cli.StringFlag{Name: "postal-code"},
	}
}

func run(c *cli.Context, call func(context.Context, *acpclient.Client) (*acpclient.Session, error)) error {
	cl := acpclient.New(c.String("url"), c.String("token"))
	cl.SignatureSecret = c.String("secret")
	cl.HTTPClient.Timeout = c.Duration("timeout")

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	cs, err := call(ctx, cl)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cs)
}

func sessionID(c *cli.Context) (string, error) {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return "", errors.New("session id argument is required")
	}
	return id, nil
}

// parseItems reads code:quantity pairs; a bare code means quantity 1.
func parseItems(raw []string) ([]acpclient.Item, error) {
	var out []acpclient.Item
	for _, r := range raw {
		code, qty, found := strings.Cut(strings.TrimSpace(r), ":")
		if code == "" {
			return nil, errors.Errorf("invalid item %q", r)
		}
		n := 1
		if found {
			v, err := strconv.Atoi(qty)
			if err != nil || v <= 0 {
				return nil, errors.Errorf("invalid quantity in %q", r)
			}
			n = v
		}
		out = append(out, acpclient.Item{ID: code, Quantity: n})
	}
	return out, nil
}

func buyer(c *cli.Context) *acpclient.Buyer {
	if c.String("email") == "" {
		return nil
	}
	return &acpclient.Buyer{Email: c.String("email")}
}

func address(c *cli.Context) *acpclient.Address {
	if c.String("line1") == "" && c.String("country") == "" {
		return nil
	}
	return &acpclient.Address{
		Name:       c.String("name"),
		LineOne:    c.String("line1"),
		LineTwo:    c.String("line2"),
		City:       c.String("city"),
		State:      c.String("state"),
		Country:    c.String("country"),
		PostalCode: c.String("postal-code"),
	}
}

func failSummary(err error) {
	out := map[string]any{"status": "FAIL", "error": err.Error()}
	var apiErr *acpclient.APIError
	if errors.As(err, &apiErr) {
		out["http_status"] = apiErr.StatusCode
		out["type"] = apiErr.Type
		out["code"] = apiErr.Code
		out["message"] = apiErr.Message
		if apiErr.Param != "" {
			out["param"] = apiErr.Param
		}
	}
	b, _ := json.Marshal(out)
	fmt.Fprintln(os.Stderr, string(b))
}
