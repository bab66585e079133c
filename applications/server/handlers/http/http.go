package http

import (
	"net/http"

	"github.com/go-kit/log"

	"github.com/mkovtun/filedrop/applications/server"
	"github.com/mkovtun/filedrop/applications/server/config"
)

func NewHTTPServer(conf config.Api, fileService server.FileService, logger log.Logger) *http.Server {
	mux := NewRouter(fileService, conf, logger)
	return &http.Server{
		Addr:    conf.HTTPAddr,
		Handler: mux,
	}
}
