// Run the convert server.
//
// All of the project defaults are used. There is one authenticated user
// for basic auth, the user is "test" and the password is "convertme".
// You will want to copy this binary and add your own authentication
// scheme.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/Shyp/go-simple-metrics"
	"github.com/gorilla/handlers"
	"github.com/mlgrupo/convert/config"
	"github.com/mlgrupo/convert/server"
	"github.com/mlgrupo/convert/setup"
)

func configure() (http.Handler, error) {
	app, err := setup.NewApp()
	if err != nil {
		return nil, err
	}

	metrics.Namespace = "convert.server"
	metrics.Start("web")

	// Uploads to drive and the transcription service reuse connections.
	config.SetMaxIdleConnsPerHost(10)

	// If you run this in production, change this user.
	server.AddUser("test", "convertme")
	return server.Get(server.Config{
		Authorizer: server.DefaultAuthorizer,
		Queue:      app.Queue,
		Ledger:     app.Ledger,
		Store:      app.Store,
	}), nil
}

func main() {
	s, err := configure()
	if err != nil {
		log.Fatal(err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}
	log.Printf("Listening on port %s\n", port)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%s", port), handlers.LoggingHandler(os.Stdout, s)))
}
