package inject

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/sdtool/internal/config"
	"github.com/dmorgan81/sdtool/internal/handler"
	"github.com/dmorgan81/sdtool/internal/image"
	"github.com/dmorgan81/sdtool/internal/log"
	"github.com/dmorgan81/sdtool/internal/markdown"
	"github.com/dmorgan81/sdtool/internal/param"
	"github.com/dmorgan81/sdtool/internal/server"
	"github.com/dmorgan81/sdtool/internal/tool"
	"github.com/samber/do"
)

// Setup registers every component. Settings come from getenv; when
// SD_URL_PARAM names a parameter the base url is read from it.
func Setup(ctx context.Context, settings config.Settings, getenv func(string) string) *do.Injector {
	logger := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[param.Fetcher](injector, param.NewParameterStoreFetcher)

	do.Provide[config.Settings](injector, func(i *do.Injector) (config.Settings, error) {
		path := getenv("SD_URL_PARAM")
		if path == "" {
			return settings, nil
		}
		url, err := do.MustInvoke[param.Fetcher](i).Fetch(ctx, path)
		if err != nil {
			return config.Settings{}, err
		}
		resolved := settings.WithBaseURL(url)
		return resolved, resolved.Validate()
	})
	do.ProvideValue[*slog.Logger](injector, logger)
	do.ProvideValue[*http.Client](injector, &http.Client{})

	do.Provide[*image.AutomaticClient](injector, image.NewAutomaticClient)
	do.Provide[image.Generator](injector, func(i *do.Injector) (image.Generator, error) {
		return do.MustInvoke[*image.AutomaticClient](i), nil
	})
	do.Provide[image.Catalog](injector, func(i *do.Injector) (image.Catalog, error) {
		return do.MustInvoke[*image.AutomaticClient](i), nil
	})
	do.Provide[*markdown.Templator](injector, markdown.NewTemplator)
	do.Provide[*tool.Tools](injector, tool.NewTools)

	do.Provide[*handler.Handler](injector, handler.NewHandler)
	do.Provide[*server.Server](injector, server.NewServer)

	return injector
}
