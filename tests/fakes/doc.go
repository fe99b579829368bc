// Package fakes provides test doubles for the Cerberus API and the AWS
// services the client authenticates with.
//
// Server is an httptest based Cerberus that keeps secrets, files and safe
// deposit boxes in memory. The AWS fakes implement the narrow client
// interfaces the awsauth package depends on. Fakes are written by hand, not
// generated, so tests control exactly what each call returns.
//
// Usage:
//
//	server := fakes.NewServer()
//	defer server.Close()
//	server.PutSecret("app/demo/db", map[string]interface{}{"password": "x"})
//
//	kms := fakes.NewFakeKMSClient() // Decrypt echoes the ciphertext
//	provider, _ := awsauth.NewStaticRoleProvider(server.URL, roleARN, "us-west-2",
//	    awsauth.WithKMSClient(kms))
package fakes
