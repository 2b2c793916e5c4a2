package main

//go:generate swag init -g cmd/signalflow/main.go -o docs

// @title           Signalflow API
// @version         0.1.0
// @description     Crypto signal analysis, lifecycle tracking and copy-trade monitoring.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
