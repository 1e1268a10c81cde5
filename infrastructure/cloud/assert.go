package cloud

import "github.com/jet-cloud/constellation/domain/consensus/model"

var _ model.CloudBackend = (*S3Backend)(nil)
var _ model.CloudBackend = (*AzureBlobBackend)(nil)
