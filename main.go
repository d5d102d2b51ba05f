/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
// @title           WATI Automation API
// @version         2.0
// @description     Bilingual WhatsApp message template library

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and an editor JWT
package main

import "github.com/HKCalvinYau/wati-automation/cmd"

func main() {
	cmd.Execute()
}
