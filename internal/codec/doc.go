// Package codec turns card states and debug messages into the key-value
// maps sent to host applications, and frames those maps as JSON or CBOR.
//
// The encoding is one-way. Key names, state tokens and the null error code
// of internal errors are a stable contract with host code:
//
//	{state: "error", errorMessage: "timeout", errorCode: 7}
//	{state: "error", errorMessage: "nil pointer", errorCode: null}
//	{state: "cardInserted", certificates: [{derData, cardNumber, serialNumber, serialString, subject}]}
package codec
