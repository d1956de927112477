package cli

import (
	"context"
	"os/user"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/viper"

	"pkg-exporter/internal/adapters"
	"pkg-exporter/internal/app"
)

// newExportService wires the pipeline from explicit configuration. Every
// collaborator is constructed here and injected; components carry no
// ambient settings.
func newExportService(ctx context.Context) (*app.Service, func(), error) {
	artifacts, err := adapters.NewArtifactRepoAdapter(adapters.ArtifactRepoConfig{
		Endpoint: viper.GetString("artifact_endpoint"),
		Username: viper.GetString("artifact_user"),
		Password: viper.GetString("artifact_password"),
		Timeout:  viper.GetDuration("request_timeout"),
	})
	if err != nil {
		return nil, nil, err
	}
	signer, err := adapters.NewSignServiceAdapter(adapters.SignServiceConfig{
		Endpoint: viper.GetString("sign_endpoint"),
		Token:    viper.GetString("sign_token"),
		Timeout:  viper.GetDuration("request_timeout"),
	})
	if err != nil {
		return nil, nil, err
	}
	dsn := viper.GetString("db_dsn")
	if dsn == "" {
		return nil, nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("db_dsn is required")
	}
	store, err := adapters.NewPGStore(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	subkeys, err := adapters.LoadKnownSubkeys(viper.GetString("subkeys_config"))
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	service := &app.Service{
		Store:     store,
		Artifacts: artifacts,
		Signer:    signer,
		Metadata:  adapters.NewRepoMetadataAdapter(),
		Inspector: adapters.NewPackageInspectorAdapter(),
		Ownership: adapters.NewOwnershipAdapter(),
		ErrorLog:  adapters.NewFileErrorLog(viper.GetString("error_log")),
		Subkeys:   subkeys,
		Config: app.Config{
			ExportRoot:   viper.GetString("export_root"),
			OperatorUser: viper.GetString("operator_user"),
			ServiceUser:  viper.GetString("service_user"),
			Workers:      viper.GetInt("workers"),
		},
	}
	return service, store.Close, nil
}

func init() {
	viper.SetDefault("request_timeout", 60*time.Second)
	viper.SetDefault("error_log", "export.err")
	viper.SetDefault("subkeys_config", "known_subkeys.yaml")
	viper.SetDefault("operator_user", invokingUser())
	viper.SetDefault("service_user", "pulp")
	viper.SetDefault("workers", 4)
}

func invokingUser() string {
	current, err := user.Current()
	if err != nil {
		return ""
	}
	return current.Username
}
