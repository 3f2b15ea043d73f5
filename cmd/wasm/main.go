//go:build js && wasm

// Package main implements a WASM build of keyfile for loading and generating
// key files in the browser. Key material never leaves the page: only
// fingerprints are returned for loaded files.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/sensiblebit/keyfile"
	"github.com/sensiblebit/keyfile/internal"
)

// version is set at build time via -ldflags "-X main.version=v0.1.0".
var version = "dev"

func main() {
	js.Global().Set("keyfileVersion", version)
	js.Global().Set("keyfileInspect", js.FuncOf(inspectFiles))
	js.Global().Set("keyfileGenerate", js.FuncOf(generate))

	// WASM modules must not exit.
	select {}
}

// inspectFiles loads an array of {name, data} objects as key files.
// JS signature: keyfileInspect(files: Array<{name: string, data: Uint8Array}>) → Promise<string>
func inspectFiles(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return jsError("keyfileInspect requires 1 argument")
	}
	filesArg := args[0]
	length := filesArg.Length()

	return newPromise(func(resolve, reject js.Value) {
		results := make([]map[string]any, 0, length)
		for i := range length {
			file := filesArg.Index(i)
			name := file.Get("name").String()
			dataJS := file.Get("data")
			data := make([]byte, dataJS.Length())
			js.CopyBytesToGo(data, dataJS)

			res, err := internal.InspectReader(bytes.NewReader(data), name)
			if err != nil {
				results = append(results, map[string]any{
					"name":   name,
					"status": "error",
					"kind":   internal.ErrorKind(err),
					"error":  err.Error(),
				})
				continue
			}
			results = append(results, map[string]any{
				"name":        name,
				"status":      "ok",
				"format":      res.Format,
				"version":     res.Version,
				"fingerprint": res.Fingerprint,
			})
		}

		jsonBytes, err := json.Marshal(results)
		if err != nil {
			reject.Invoke(fmt.Sprintf("marshaling inspect results: %v", err))
			return
		}
		resolve.Invoke(string(jsonBytes))
	})
}

// generate creates a new key file.
// JS signature: keyfileGenerate(type: string) → Promise<Uint8Array>
func generate(_ js.Value, args []js.Value) any {
	name := keyfile.FormatXMLV2.String()
	if len(args) >= 1 && args[0].Type() == js.TypeString {
		name = args[0].String()
	}
	f, err := keyfile.ParseFormat(name)
	if err != nil {
		return jsError(err.Error())
	}

	return newPromise(func(resolve, reject js.Value) {
		res, err := internal.GenerateKeyFile(internal.GenerateOptions{Format: f})
		if err != nil {
			reject.Invoke(js.Global().Get("Error").New(err.Error()))
			return
		}
		out := js.Global().Get("Uint8Array").New(len(res.Data))
		js.CopyBytesToJS(out, res.Data)
		resolve.Invoke(out)
	})
}

// newPromise runs fn on a goroutine and returns a JS Promise settled by it.
func newPromise(fn func(resolve, reject js.Value)) any {
	handler := js.FuncOf(func(_ js.Value, promiseArgs []js.Value) any {
		resolve, reject := promiseArgs[0], promiseArgs[1]
		go fn(resolve, reject)
		return nil
	})
	// Promise.New calls the executor synchronously; release immediately after.
	p := js.Global().Get("Promise").New(handler)
	handler.Release()
	return p
}

func jsError(msg string) any {
	return newPromise(func(_, reject js.Value) {
		reject.Invoke(js.Global().Get("Error").New(msg))
	})
}
