// Package stellarsvc and its sub-packages implement the stellar wallet service of an avatar.
/*
stellarsvc provides one microservice (package stellar) that holds the avatar wallet on the Stellar network and serves
it to the other avatar services over a message broker.

Architecture

Avatar services talk to each other through a message broker, each one consuming the requests sent to its own key
("everlife-stellar-svc" for this service). The message broker is implemented as a product agnostic layer (package
lib/msg) and is configured via a JSON config file at service startup. Requests are replied to the queue and
correlation id they came with.

The wallet keys are kept encrypted on disk (package lib/keystore) with a password that is itself stored encrypted
(package lib/pw). The password is saved once with cmd/pwsetup and loaded by the service at startup. The most recent
wallet is used, and the first one is created when none exists.

A ledger layer (package lib/block) talks to a Horizon server of the test or live Stellar network. It provides the
account balances, the EVER trustline, payments, claimable balances and the transaction history, which is accumulated
page by page with retries.

An optional database (package lib/store) journals the operations submitted to the ledger and caches the EVER issuer
meta data. It provides a database product agnostic interface with MongoDB and PostgreSQL implementations.

The microservice can also be monitored via a Prometheus API by setting the flag "-m" at startup.

Stellar

The stellar microservice can be started running cmd/stellar/main.go. At startup it registers two chat commands with
the communication manager, /wallet_set_trustline and /wallet_save_keys, and answers these requests:

	account-id, balance, txns, setup-ever-trustline, pay-ever, claimable-balance, claim-balance,
	import-new-wallet, set-new-pw, issuer-meta-data, account-qr, ops, msg

When a port is configured, the same operations are served to operators by an HTTP RESTful API. The API has no
authentication and can move funds (POST /pay, /claim), so it listens on localhost by default. Setting endpoint to
"" or a public address exposes it on those interfaces.
*/
package stellarsvc
