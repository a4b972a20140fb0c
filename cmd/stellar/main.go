// Package main: stellar wallet service.
//
// The service needs the wallet password saved beforehand with the pwsetup command. On start it loads (or creates)
// the avatar wallet, reads the EVER issuer meta data, starts answering requests on the message broker and registers
// its chat commands with the communication manager.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tarancss/stellarsvc/lib/block"
	"github.com/tarancss/stellarsvc/lib/config"
	"github.com/tarancss/stellarsvc/lib/keystore"
	"github.com/tarancss/stellarsvc/lib/msg"
	"github.com/tarancss/stellarsvc/lib/msg/amqp"
	"github.com/tarancss/stellarsvc/lib/pw"
	"github.com/tarancss/stellarsvc/lib/store"
	"github.com/tarancss/stellarsvc/lib/store/db"
	"github.com/tarancss/stellarsvc/stellar"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9100/metrics")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		panic(err)
	}

	if err = conf.Validate(); err != nil {
		panic(err)
	}

	log.Printf("Configuration: horizon:%s datadir:%s issuer:%s mbtype:%s svckey:%s commkey:%s dbtype:%s",
		conf.Horizon, conf.DataDir, conf.Issuer, conf.MbType, conf.SvcKey, conf.CommKey, conf.DbType)

	// load wallet password
	password, err := pw.Load(conf.PasswordFile(), conf.PwEnc)
	if err != nil {
		log.Fatalf("Cannot load wallet password from %s (run pwsetup first): %v", conf.PasswordFile(), err)
	}

	// load or create the wallet
	acc, err := keystore.Locate(password, conf.WalletDir())
	if err != nil {
		panic(err)
	}

	log.Printf("Wallet %s loaded: %s", acc.Name(), acc.Pub())

	// connect to database
	var dbConn store.DB

	if conf.DbConn != "" {
		if dbConn, err = db.New(conf.DbType, conf.DbConn); err != nil {
			panic(err)
		}

		log.Printf("Connecting to %s database", conf.DbType)
	}

	// load ledger client
	ledger, err := block.Init(conf)
	if err != nil {
		panic(err)
	}

	// load Prometheus monitor
	if *monitor {
		go func() {
			log.Println("Serving metrics API")

			h := http.NewServeMux()

			h.Handle("/metrics", promhttp.Handler())
			log.Printf("Metrics server: %v", http.ListenAndServe(":9100", h))
		}()
	}

	// load message broker
	var mb msg.MsgBroker

	switch conf.MbType {
	case "amqp":
		if mb, err = amqp.New(conf.MbConn); err != nil {
			time.Sleep(10 * time.Second) // wait 10s for AMQP to be ready and try to reconnect

			if mb, err = amqp.New(conf.MbConn); err != nil {
				panic(err)
			}
		}

		if err = mb.Setup(nil); err != nil {
			panic(err)
		}
	default:
		log.Fatalf("Unknown message broker type: %s\n", conf.MbType)
	}

	// create stellar service
	s := stellar.New(conf, ledger, mb, dbConn, acc, password)

	if err = s.LoadMetaData(); err != nil {
		log.Printf("Issuer meta data not available yet: %v", err)
	}

	// capture CTRL+C or docker's SIGTERM for gracious exit
	finish := make(chan int)

	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Println("Program killed !")
		// do last actions and wait for all write operations to end
		s.Stop()
		close(finish)
	}()

	// manage requests
	if err = s.ManageRequests(); err != nil {
		panic(err)
	}

	if err = s.Register(); err != nil {
		log.Printf("Error registering with the communication manager:%v", err)
	}

	// init RESTful API, wait for its return and log response
	log.Printf("Stellar: %s\n", s.Init(conf.Endpoint, conf.Port))

	<-finish
}
