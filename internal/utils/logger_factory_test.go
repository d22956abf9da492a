package utils_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gmig/internal/utils"
)

const (
	testInvalidLogLevelConstant      = "invalid"
	testInvalidLogFormatConstant     = "invalid"
	testLogFileNameConstant          = "run.log"
	testFileLoggerMessageConstant    = "file_logger_test_message"
	testFileLoggerMessageKeyConstant = "msg"
)

func TestLoggerFactoryCreateLogger(testInstance *testing.T) {
	testCases := []struct {
		name               string
		requestedLogLevel  utils.LogLevel
		requestedLogFormat utils.LogFormat
		expectError        bool
	}{
		{
			name:               "supported_structured",
			requestedLogLevel:  utils.LogLevelInfo,
			requestedLogFormat: utils.LogFormatStructured,
			expectError:        false,
		},
		{
			name:               "supported_console",
			requestedLogLevel:  utils.LogLevelDebug,
			requestedLogFormat: utils.LogFormatConsole,
			expectError:        false,
		},
		{
			name:               "unsupported_log_level",
			requestedLogLevel:  utils.LogLevel(testInvalidLogLevelConstant),
			requestedLogFormat: utils.LogFormatStructured,
			expectError:        true,
		},
		{
			name:               "unsupported_log_format",
			requestedLogLevel:  utils.LogLevelInfo,
			requestedLogFormat: utils.LogFormat(testInvalidLogFormatConstant),
			expectError:        true,
		},
	}

	loggerFactory := utils.NewLoggerFactory()

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			createdLogger, creationError := loggerFactory.CreateLogger(testCase.requestedLogLevel, testCase.requestedLogFormat)
			if testCase.expectError {
				require.Error(subtestInstance, creationError)
				require.Nil(subtestInstance, createdLogger)
				return
			}
			require.NoError(subtestInstance, creationError)
			require.NotNil(subtestInstance, createdLogger)
		})
	}
}

func TestLoggerFactoryCreateFileLoggerAppendsStructuredEntries(testInstance *testing.T) {
	temporaryDirectory := testInstance.TempDir()
	logFilePath := filepath.Join(temporaryDirectory, testLogFileNameConstant)

	loggerFactory := utils.NewLoggerFactory()
	fileLogger, creationError := loggerFactory.CreateFileLogger(utils.LogLevelInfo, logFilePath)
	require.NoError(testInstance, creationError)

	fileLogger.Info(testFileLoggerMessageConstant)
	require.NoError(testInstance, fileLogger.Sync())

	fileContent, readError := os.ReadFile(logFilePath)
	require.NoError(testInstance, readError)

	var decodedEntry map[string]any
	require.NoError(testInstance, json.Unmarshal(fileContent, &decodedEntry))
	require.Equal(testInstance, testFileLoggerMessageConstant, decodedEntry[testFileLoggerMessageKeyConstant])
}

func TestLoggerFactoryCreateFileLoggerRejectsUnsupportedLevel(testInstance *testing.T) {
	loggerFactory := utils.NewLoggerFactory()
	fileLogger, creationError := loggerFactory.CreateFileLogger(utils.LogLevel(testInvalidLogLevelConstant), filepath.Join(testInstance.TempDir(), testLogFileNameConstant))
	require.Error(testInstance, creationError)
	require.Nil(testInstance, fileLogger)
}
