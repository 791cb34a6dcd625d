package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/biliproxy/internal/bilibili"
	"github.com/dropDatabas3/biliproxy/internal/wbi"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		out     = envOr("BILICTL_OUT", "text")
		timeout = 15 * time.Second
	)

	root := &cobra.Command{
		Use:           "bilictl",
		Short:         "Herramientas de línea de comandos para biliproxy y la firma WBI",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")
	root.PersistentFlags().DurationVar(&timeout, "timeout", timeout, "Timeout por request")

	root.AddCommand(newSignCmd(&out), newKeysCmd(&out, &timeout), newGetCmd(&timeout))
	return root
}

// sign: firma offline con claves conocidas.
func newSignCmd(out *string) *cobra.Command {
	var imgKey, subKey string
	var wts int64

	cmd := &cobra.Command{
		Use:   "sign key=value [key=value...]",
		Short: "Firmar parámetros con WBI usando img_key/sub_key dados",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imgKey, subKey = wbi.KeyFromURL(imgKey), wbi.KeyFromURL(subKey)
			if len(imgKey) != wbi.KeyLen || len(subKey) != wbi.KeyLen {
				return fmt.Errorf("--img-key y --sub-key deben tener %d caracteres (o ser la URL del .png)", wbi.KeyLen)
			}
			params, err := parseParams(args)
			if err != nil {
				return err
			}

			var opts []wbi.SignerOption
			if wts > 0 {
				opts = append(opts, wbi.WithClock(func() time.Time { return time.Unix(wts, 0) }))
			}
			signed, err := wbi.NewSigner(nil, opts...).Sign(params, wbi.KeyPair{ImgKey: imgKey, SubKey: subKey})
			if err != nil {
				return err
			}

			if *out == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"wts":   signed.Wts(),
					"w_rid": signed.WRID(),
					"query": signed.Encode(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed.Encode())
			return nil
		},
	}
	cmd.Flags().StringVar(&imgKey, "img-key", os.Getenv("BILICTL_IMG_KEY"), "img_key (32 chars) o img_url")
	cmd.Flags().StringVar(&subKey, "sub-key", os.Getenv("BILICTL_SUB_KEY"), "sub_key (32 chars) o sub_url")
	cmd.Flags().Int64Var(&wts, "wts", 0, "timestamp fijo (unix segundos); 0 = ahora")
	return cmd
}

// keys: trae las claves vigentes desde el upstream.
func newKeysCmd(out *string, timeout *time.Duration) *cobra.Command {
	var baseURL, cookie string

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Obtener img_key/sub_key actuales desde /x/web-interface/nav",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := bilibili.New(bilibili.Config{BaseURL: baseURL, Timeout: *timeout, Cookie: cookie})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), *timeout)
			defer cancel()

			kp, err := client.Keys().Keys(ctx)
			if err != nil {
				return err
			}
			if *out == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"img_key":    kp.ImgKey,
					"sub_key":    kp.SubKey,
					"mixin_key":  kp.MixinKey(),
					"expires_at": kp.ExpiresAt.UTC().Format(time.RFC3339),
				})
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "img_key   %s\n", kp.ImgKey)
			fmt.Fprintf(w, "sub_key   %s\n", kp.SubKey)
			fmt.Fprintf(w, "mixin_key %s\n", kp.MixinKey())
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "upstream", envOr("BILIPROXY_UPSTREAM_BASE_URL", bilibili.DefaultBaseURL), "URL base de la API de Bilibili")
	cmd.Flags().StringVar(&cookie, "cookie", os.Getenv("BILIPROXY_UPSTREAM_COOKIE"), "Cookie opcional para el upstream")
	return cmd
}

// get: consulta un proxy corriendo y muestra el JSON indentado.
func newGetCmd(timeout *time.Duration) *cobra.Command {
	var proxyURL string

	cmd := &cobra.Command{
		Use:     "get PATH",
		Short:   "GET a un endpoint del proxy (ej: \"/api/video?bvid=BV1xx411c7mD\")",
		Args:    cobra.ExactArgs(1),
		Example: "  bilictl get /api/search?keyword=golang\n  bilictl get /health",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), *timeout)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(proxyURL, "/")+path, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			var v any
			if json.Unmarshal(body, &v) == nil {
				if err := printJSON(cmd.OutOrStdout(), v); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
			}
			if resp.StatusCode/100 != 2 {
				return fmt.Errorf("status=%d", resp.StatusCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&proxyURL, "proxy", envOr("BILIPROXY_URL", "http://localhost:3000"), "URL base del proxy (env BILIPROXY_URL)")
	return cmd
}

// parseParams convierte ["mid=1","keyword=a b"] en wbi.Params.
func parseParams(args []string) (wbi.Params, error) {
	params := make(wbi.Params, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("parámetro inválido %q (se espera key=value)", a)
		}
		params[k] = v
	}
	return params, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
