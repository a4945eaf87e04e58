package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/santagram/santagram/internal/api"
	"github.com/santagram/santagram/internal/providers"
	"github.com/santagram/santagram/internal/svcctx"
)

// VoicesResponse lists the voices one TTS provider offers.
type VoicesResponse struct {
	Provider string            `json:"provider"`
	Voices   []providers.Voice `json:"voices"`
}

// VoicesEndpoint handles GET /api/voices.
type VoicesEndpoint struct{}

func (e *VoicesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/voices", e.handler
}

func (e *VoicesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List TTS voices
//	@Description	List the voices available from a TTS provider (primary by default)
//	@Tags			settings
//	@Produce		json
//	@Param			provider	query		string	false	"Provider name"
//	@Success		200			{object}	VoicesResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		502			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/voices [get]
func (e *VoicesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	registry := svcctx.RegistryFrom(r.Context())
	if registry == nil {
		writeError(w, http.StatusServiceUnavailable, "providers not available")
		return
	}

	var (
		provider providers.TTSProvider
		err      error
	)
	if name := r.URL.Query().Get("provider"); name != "" {
		provider, err = registry.Get(name)
	} else {
		provider, err = registry.Primary()
	}
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	lister, ok := provider.(providers.VoicesLister)
	if !ok {
		writeError(w, http.StatusNotFound, "provider does not expose a voice catalog")
		return
	}

	voices, err := lister.ListVoices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, VoicesResponse{
		Provider: provider.Name(),
		Voices:   voices,
	})
}

func (e *VoicesEndpoint) Command(getServerURL func() string) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List TTS voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/voices"
			if provider != "" {
				path += "?provider=" + provider
			}

			client := api.NewClient(getServerURL())
			var resp VoicesResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Provider name (defaults to the primary)")
	return cmd
}
