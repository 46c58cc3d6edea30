package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

const defaultBaseURL = "http://localhost:8000"

type options struct {
	baseURL   string
	tokenPath string
	prefix    string
	timeout   time.Duration
}

func (o *options) client(withToken bool) (*apiClient, error) {
	c := &apiClient{
		http:    &http.Client{Timeout: o.timeout},
		baseURL: o.baseURL,
	}
	if withToken {
		token, err := readToken(o.tokenPath)
		if err != nil {
			return nil, err
		}
		c.token = token
	}
	return c, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "bibxml",
		Short:         "Client for the bibxml citation service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "api", envOr("BIBXML_API", defaultBaseURL), "API base URL")
	root.PersistentFlags().StringVar(&opts.tokenPath, "token-file", defaultTokenPath(), "token file path")
	root.PersistentFlags().StringVar(&opts.prefix, "prefix", "public/rfc", "xml2rfc path prefix")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	root.AddCommand(
		newResolveCmd(opts),
		newRefCmd(opts),
		newSearchCmd(opts),
		newDocIDCmd(opts),
		newTokenCmd(opts),
		newManualMapCmd(opts),
	)
	return root
}

func newResolveCmd(opts *options) *cobra.Command {
	var override, requestedWith string
	var showHeaders bool
	cmd := &cobra.Command{
		Use:   "resolve <dirname> <anchor>",
		Short: "Fetch xml2rfc reference XML through the compat paths",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(false)
			if err != nil {
				return err
			}
			res, err := c.resolve(cmd.Context(), opts.prefix, args[0], args[1], override, requestedWith)
			if err != nil {
				return err
			}
			if showHeaders {
				fmt.Fprintf(cmd.ErrOrStderr(), "methods:  %s\noutcomes: %s\n", res.Methods, res.Outcomes)
			}
			if res.Status != http.StatusOK {
				var failure struct {
					Error struct {
						Message string `json:"message"`
					} `json:"error"`
				}
				if json.Unmarshal(res.Body, &failure) == nil && failure.Error.Message != "" {
					return fmt.Errorf("%d: %s", res.Status, failure.Error.Message)
				}
				return fmt.Errorf("%d: %s", res.Status, strings.TrimSpace(string(res.Body)))
			}
			_, err = cmd.OutOrStdout().Write(res.Body)
			return err
		},
	}
	cmd.Flags().StringVar(&override, "anchor", "", "anchor to render instead of the derived one")
	cmd.Flags().StringVar(&requestedWith, "requested-with", "", "X-Requested-With header value")
	cmd.Flags().BoolVar(&showHeaders, "headers", false, "print resolution headers to stderr")
	return cmd
}

func newRefCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ref <dataset> <ref>",
		Short: "Show one indexed record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(false)
			if err != nil {
				return err
			}
			var out map[string]any
			if err := c.doJSON(cmd.Context(), http.MethodGet, "/api/v1/ref/"+args[0]+"/"+args[1], nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newSearchCmd(opts *options) *cobra.Command {
	var fields, dataset, offset, limit string
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run the legacy containment search",
		RunE: func(cmd *cobra.Command, args []string) error {
			var q map[string]any
			if err := json.Unmarshal([]byte(fields), &q); err != nil {
				return fmt.Errorf("--fields must be a JSON object: %w", err)
			}
			payload := map[string]any{"fields": q}
			if dataset != "" {
				payload["dataset"] = dataset
			}
			if offset != "" {
				payload["offset"] = offset
			}
			if limit != "" {
				payload["limit"] = limit
			}

			c, err := opts.client(false)
			if err != nil {
				return err
			}
			var out map[string]any
			if err := c.doJSON(cmd.Context(), http.MethodPost, "/api/v1/search", payload, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&fields, "fields", "{}", "JSON object the record bodies must contain")
	cmd.Flags().StringVar(&dataset, "dataset", "", "restrict to one dataset")
	cmd.Flags().StringVar(&offset, "offset", "", "result offset")
	cmd.Flags().StringVar(&limit, "limit", "", "page size")
	return cmd
}

func newDocIDCmd(opts *options) *cobra.Command {
	var doctype string
	cmd := &cobra.Command{
		Use:   "docid <id>",
		Short: "Build the citation for a document identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(false)
			if err != nil {
				return err
			}
			q := "/api/v1/by-docid?docid=" + url.QueryEscape(args[0])
			if doctype != "" {
				q += "&doctype=" + url.QueryEscape(doctype)
			}
			var out map[string]any
			if err := c.doJSON(cmd.Context(), http.MethodGet, q, nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&doctype, "doctype", "", "docid type, e.g. IETF or DOI")
	return cmd
}

func newTokenCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the management API token",
	}

	var user, password string
	login := &cobra.Command{
		Use:   "login",
		Short: "Exchange admin credentials for a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("BIBXML_ADMIN_PASSWORD")
			}
			if user == "" || password == "" {
				return fmt.Errorf("--user and --password are required")
			}
			c, err := opts.client(false)
			if err != nil {
				return err
			}
			token, err := c.requestToken(cmd.Context(), user, password)
			if err != nil {
				return err
			}
			if err := saveToken(opts.tokenPath, token); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged in")
			return nil
		},
	}
	login.Flags().StringVar(&user, "user", "admin", "admin user")
	login.Flags().StringVar(&password, "password", "", "admin password (or BIBXML_ADMIN_PASSWORD)")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clearToken(opts.tokenPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}

	cmd.AddCommand(login, logout)
	return cmd
}

const managementPath = "/api/v1/management/xml2rfc"

func newManualMapCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "manual-map",
		Aliases: []string{"mm"},
		Short:   "Inspect and edit the manual map",
	}

	var prefix string
	list := &cobra.Command{
		Use:   "list",
		Short: "List manual map entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			var out map[string]any
			if err := c.doJSON(cmd.Context(), http.MethodGet, managementPath+"/manual-map?prefix="+url.QueryEscape(prefix), nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	list.Flags().StringVar(&prefix, "prefix", "", "subpath prefix, e.g. bibxml3/")

	set := &cobra.Command{
		Use:   "set <subpath> <docid>",
		Short: "Map a subpath to a document identifier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			var out map[string]any
			payload := map[string]string{"docid": args[1]}
			if err := c.doJSON(cmd.Context(), http.MethodPut, managementPath+"/manual-map/"+strings.Trim(args[0], "/"), payload, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	del := &cobra.Command{
		Use:   "delete <subpath>",
		Short: "Remove a manual mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			if err := c.doJSON(cmd.Context(), http.MethodDelete, managementPath+"/manual-map/"+strings.Trim(args[0], "/"), nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
			return nil
		},
	}

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Stream resolution and manual map events",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), c, cmd)
		},
	}

	cmd.AddCommand(list, set, del, watch)
	return cmd
}

func runWatch(ctx context.Context, c *apiClient, cmd *cobra.Command) error {
	wsURL, err := websocketURL(c.baseURL, managementPath+"/events")
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Fprintln(cmd.ErrOrStderr(), "connected to", wsURL)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(msg))
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
